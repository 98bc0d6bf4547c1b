package jobs

import (
	"context"
	"sync"
)

// registry tracks which files of a job are being processed and how to cancel
// the runs that own them.
type registry struct {
	mu       sync.Mutex
	inflight map[string]map[string]struct{}
	cancels  map[string]map[uint64]context.CancelFunc
	next     uint64
}

func newRegistry() *registry {
	return &registry{
		inflight: make(map[string]map[string]struct{}),
		cancels:  make(map[string]map[uint64]context.CancelFunc),
	}
}

// claim marks file as in flight. It returns false if it already was.
func (r *registry) claim(jobID, file string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	files := r.inflight[jobID]
	if files == nil {
		files = make(map[string]struct{})
		r.inflight[jobID] = files
	}
	if _, busy := files[file]; busy {
		return false
	}
	files[file] = struct{}{}
	return true
}

func (r *registry) release(jobID, file string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	files := r.inflight[jobID]
	delete(files, file)
	if len(files) == 0 {
		delete(r.inflight, jobID)
	}
}

func (r *registry) busy(jobID, file string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inflight[jobID][file]
	return ok
}

// count returns the number of files of jobID currently being processed.
func (r *registry) count(jobID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight[jobID])
}

// track registers cancel for jobID and returns a func that unregisters it.
func (r *registry) track(jobID string, cancel context.CancelFunc) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	id := r.next
	runs := r.cancels[jobID]
	if runs == nil {
		runs = make(map[uint64]context.CancelFunc)
		r.cancels[jobID] = runs
	}
	runs[id] = cancel

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.cancels[jobID], id)
		if len(r.cancels[jobID]) == 0 {
			delete(r.cancels, jobID)
		}
	}
}

// cancel stops every run of jobID and reports whether there was one.
func (r *registry) cancel(jobID string) bool {
	r.mu.Lock()
	runs := r.cancels[jobID]
	fns := make([]context.CancelFunc, 0, len(runs))
	for _, fn := range runs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns) > 0
}
