package di

import (
	"context"
	"io"
	"testing"

	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/config"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func testContainer() *Container {
	cfg := config.DefaultSyncConfig()
	cfg.Storage.SourceDatabase = "source"
	cfg.Storage.TargetDatabase = "mirror"
	cfg.Storage.CollectionNames = []string{"orders"}

	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewContainer(cfg, logger.NewLogrusLogger(l))
}

func TestContainer_InitializeSyncRequiresConnections(t *testing.T) {
	c := testContainer()
	err := c.InitializeSync("run-1", c.Logger)
	assert.Error(t, err)
	assert.Nil(t, c.GetSyncModule())
}

func TestContainer_InitializeSync(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("builds module on connected clients", func(mt *mtest.T) {
		c := testContainer()
		c.SourceClient = mt.Client
		c.TargetClient = mt.Client

		require.NoError(t, c.InitializeSync("run-1", c.Logger))
		m := c.GetSyncModule()
		require.NotNil(t, m)
		assert.Equal(t, 2, m.Orchestrator.TaskCount())
	})
}

func TestContainer_ConnectToleratesUnreachableStores(t *testing.T) {
	c := testContainer()
	c.Config.Storage.SourceConnection = "mongodb://127.0.0.1:1"
	c.Config.Storage.TargetConnection = "mongodb://127.0.0.1:1"
	c.Config.Timing.ConnectTimeoutSeconds = 1
	c.Config.Timing.ServerSelectionTimeoutSeconds = 1

	l, hook := test.NewNullLogger()
	c.Logger = logger.NewLogrusLogger(l)

	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	assert.NotNil(t, c.SourceClient)
	assert.NotNil(t, c.TargetClient)

	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Store is not reachable yet, sync loops will retry" {
			warnings++
		}
	}
	assert.Equal(t, 2, warnings)

	require.NoError(t, c.InitializeSync("run-1", c.Logger))
	assert.NotNil(t, c.GetSyncModule())
}

func TestContainer_ConnectRejectsInvalidURI(t *testing.T) {
	c := testContainer()
	c.Config.Storage.SourceConnection = "not-a-mongo-uri"
	c.Config.Storage.TargetConnection = "mongodb://127.0.0.1:1"

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source database")
}

func TestContainer_CleanupWithoutConnections(t *testing.T) {
	c := testContainer()
	assert.NoError(t, c.Cleanup(context.Background()))
	assert.NoError(t, c.Close())
}
