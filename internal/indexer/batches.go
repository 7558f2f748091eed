package indexer

import (
	"context"
	"sync"
)

// batchRegistry holds a cancellation context per import job running in
// this process. Jobs canceled from another process are caught by the store
// check at each checkpoint instead.
type batchRegistry struct {
	mu      sync.Mutex
	batches map[string]*batch
}

type batch struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newBatchRegistry() *batchRegistry {
	return &batchRegistry{batches: make(map[string]*batch)}
}

func (r *batchRegistry) register(jobID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[jobID]; ok {
		return b.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.batches[jobID] = &batch{ctx: ctx, cancel: cancel}
	return ctx
}

// lookup returns the job's context, or nil when it is not tracked here.
func (r *batchRegistry) lookup(jobID string) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[jobID]; ok {
		return b.ctx
	}
	return nil
}

func (r *batchRegistry) cancel(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[jobID]; ok {
		b.cancel()
	}
}

// release forgets a finished job.
func (r *batchRegistry) release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.batches[jobID]; ok {
		b.cancel()
		delete(r.batches, jobID)
	}
}
