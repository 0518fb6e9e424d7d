package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/corvata/gleaner/config"
	"github.com/corvata/gleaner/logger"
)

// DefaultWorkers is the pool size when configuration doesn't say.
const DefaultWorkers = 4

// memoryBufferMB is RAM held back from the worker-count recommendation
// for the process itself plus whatever else the machine is doing.
const memoryBufferMB = 512

// Pool runs document keys through a fixed number of workers. It is
// run-scoped, not a daemon: Run dispatches one slice of keys and
// returns once every dispatched key has finished.
type Pool struct {
	workers           int
	memoryPerWorkerMB int
	log               *zap.SugaredLogger
}

// NewPool sizes a pool from configuration, falling back to defaults
// for missing values.
func NewPool(cfg config.PipelineConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	perWorker := cfg.MemoryPerWorkerMB
	if perWorker <= 0 {
		perWorker = 256
	}
	return &Pool{
		workers:           workers,
		memoryPerWorkerMB: perWorker,
		log:               logger.ComponentLogger("pipeline.pool"),
	}
}

// Workers returns the configured concurrency.
func (p *Pool) Workers() int { return p.workers }

// Run feeds keys to the workers and blocks until they drain. Cancelling
// ctx stops dispatch; keys already handed to a worker run to completion
// so no document is abandoned half-written. A panicking worker is
// confined to its document: the panic is recovered, reported through
// onPanic, and the worker moves on. Returns how many keys were handled.
func (p *Pool) Run(ctx context.Context, keys []string, fn func(ctx context.Context, key string), onPanic func(key string, recovered interface{})) int {
	if len(keys) == 0 {
		return 0
	}
	if warning := p.checkMemoryPressure(); warning != "" {
		p.log.Warnw("memory pressure warning",
			"warning", warning,
			logger.FieldWorkers, p.workers)
	}

	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for _, key := range keys {
			select {
			case jobs <- key:
			case <-ctx.Done():
				return
			}
		}
	}()

	var handled atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for key := range jobs {
				p.runOne(ctx, id, key, fn, onPanic)
				handled.Add(1)
			}
		}(i)
	}
	wg.Wait()

	return int(handled.Load())
}

func (p *Pool) runOne(ctx context.Context, workerID int, key string, fn func(ctx context.Context, key string), onPanic func(key string, recovered interface{})) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorw("worker panicked on document",
				"worker_id", workerID,
				logger.FieldDocKey, key,
				"panic", r,
				"stack", string(debug.Stack()))
			if onPanic != nil {
				onPanic(key, r)
			}
		}
	}()
	fn(ctx, key)
}

// recommendedWorkers caps concurrency by available memory. Each worker
// holds roughly one document's render pass in flight, which is where
// the memory goes.
func recommendedWorkers(availableMB, perWorkerMB int) int {
	usable := availableMB - memoryBufferMB
	if usable < perWorkerMB {
		return 1
	}
	return usable / perWorkerMB
}

// checkMemoryPressure compares the configured worker count against
// what the machine can comfortably hold. Advisory only: the run
// proceeds either way, the warning tells the operator why it may swap.
func (p *Pool) checkMemoryPressure() string {
	v, err := mem.VirtualMemory()
	if err != nil {
		return "" // can't check, assume fine
	}

	availableMB := int(v.Available / 1024 / 1024)
	recommended := recommendedWorkers(availableMB, p.memoryPerWorkerMB)
	if p.workers <= recommended {
		return ""
	}
	return fmt.Sprintf(
		"%d workers want ~%dMB but only %dMB is available; consider --workers %d",
		p.workers, p.workers*p.memoryPerWorkerMB, availableMB, recommended)
}
