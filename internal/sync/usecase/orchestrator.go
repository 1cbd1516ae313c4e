package usecase

import (
	"context"
	"fmt"
	"sync"

	"storage-sync-worker/internal/shared/logger"
)

// Runner is a long-lived task that returns when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context) error
}

type task struct {
	collection string
	loop       string
	runner     Runner
}

// Orchestrator runs every registered loop on its own goroutine. A loop that
// fails or panics is logged and does not affect the others.
type Orchestrator struct {
	tasks  []task
	logger logger.Logger
}

// NewOrchestrator creates an empty orchestrator.
func NewOrchestrator(log logger.Logger) *Orchestrator {
	return &Orchestrator{logger: log.WithComponent("orchestrator")}
}

// AddReplication registers a replication loop.
func (o *Orchestrator) AddReplication(loop *ReplicationLoop) {
	o.add(loop.Collection(), loopReplication, loop)
}

// AddRetention registers a retention loop.
func (o *Orchestrator) AddRetention(loop *RetentionLoop) {
	o.add(loop.Collection(), loopRetention, loop)
}

func (o *Orchestrator) add(collection, loop string, r Runner) {
	o.tasks = append(o.tasks, task{collection: collection, loop: loop, runner: r})
}

// TaskCount returns the number of registered loops.
func (o *Orchestrator) TaskCount() int {
	return len(o.tasks)
}

// Run starts all loops and blocks until every one of them has returned.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.WithFields(map[string]interface{}{"tasks": len(o.tasks)}).Info("Starting sync loops")

	var wg sync.WaitGroup
	for _, t := range o.tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runTask(ctx, t)
		}()
	}
	wg.Wait()

	o.logger.Info("All sync loops stopped")
	return nil
}

func (o *Orchestrator) runTask(ctx context.Context, t task) {
	log := o.logger.WithFields(map[string]interface{}{
		"collection": t.collection,
		"loop":       t.loop,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithError(fmt.Errorf("panic: %v", r)).Error("Sync loop crashed")
		}
	}()

	if err := t.runner.Run(ctx); err != nil {
		log.WithError(err).Error("Sync loop stopped with error")
		return
	}
	log.Debug("Sync loop stopped")
}
