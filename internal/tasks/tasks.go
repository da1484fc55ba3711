// Package tasks tracks named background jobs such as OHLCV refreshes and
// simulations so the status report can list what is running.
package tasks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry is a concurrency-safe set of active task names.
type Registry struct {
	mu     sync.RWMutex
	active map[string]time.Time
}

func NewRegistry() *Registry {
	return &Registry{active: make(map[string]time.Time)}
}

// Register marks name active. It fails when name is already running.
func (r *Registry) Register(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[name]; ok {
		return fmt.Errorf("task %q already running", name)
	}
	r.active[name] = time.Now()
	return nil
}

func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, name)
}

// List returns active task names sorted alphabetically.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Job is the body of a background task.
type Job func(ctx context.Context) error

// Runner starts jobs in goroutines and keeps the registry in sync.
type Runner struct {
	reg *Registry
	wg  sync.WaitGroup
}

func NewRunner(reg *Registry) *Runner {
	return &Runner{reg: reg}
}

// Go registers name, then runs job in the background. onStart and onFinish
// are optional; onFinish receives the job's error. Registration failure is
// returned without starting the job.
func (r *Runner) Go(ctx context.Context, name string, job Job, onStart func(), onFinish func(error)) error {
	if err := r.reg.Register(name); err != nil {
		return err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.reg.Unregister(name)

		started := time.Now()
		if onStart != nil {
			onStart()
		}
		log.Info().Str("task", name).Msg("Task started")

		err := runSafely(ctx, job)

		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		ev.Str("task", name).Dur("elapsed", time.Since(started)).Msg("Task finished")

		if onFinish != nil {
			onFinish(err)
		}
	}()
	return nil
}

// Wait blocks until every started job has returned.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func runSafely(ctx context.Context, job Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return job(ctx)
}
