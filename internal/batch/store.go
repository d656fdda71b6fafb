// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/job"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/logger"
)

// Batch is one submitted set of conversions. Jobs are fixed at
// submission; only their states change afterward.
type Batch struct {
	ID        string
	OutputDir string
	CreatedAt int64

	jobs []*job.Job
	done chan struct{}
}

// Jobs returns the batch's jobs in submission order.
func (b *Batch) Jobs() []*job.Job {
	return append([]*job.Job(nil), b.jobs...)
}

// Job finds a job by ID.
func (b *Batch) Job(id string) (*job.Job, bool) {
	for _, jb := range b.jobs {
		if jb.ID() == id {
			return jb, true
		}
	}
	return nil, false
}

// Statuses returns a snapshot per job.
func (b *Batch) Statuses() []job.Status {
	out := make([]job.Status, 0, len(b.jobs))
	for _, jb := range b.jobs {
		out = append(out, jb.Snapshot())
	}
	return out
}

// CancelAll sets every job's token without waiting.
func (b *Batch) CancelAll() {
	cancelJobs(b.jobs)
}

// Done is closed once every job has reached a terminal state.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Finished reports whether every job is terminal.
func (b *Batch) Finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Store tracks submitted batches in memory and runs each one on the
// shared supervisor.
type Store struct {
	sup   *Supervisor
	width int
	log   logger.Logger

	mu      sync.RWMutex
	batches map[string]*Batch
}

// NewStore creates a Store dispatching onto sup with the given pool width.
func NewStore(sup *Supervisor, width int, log logger.Logger) *Store {
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		sup:     sup,
		width:   width,
		log:     log,
		batches: make(map[string]*Batch),
	}
}

// Submit validates and starts a batch converting inputs into outputDir.
// It returns as soon as the jobs are dispatched; progress is observed
// through the job snapshots and Done.
func (s *Store) Submit(inputs []string, outputDir string) (*Batch, error) {
	requests := make([]Request, 0, len(inputs))
	for _, in := range inputs {
		requests = append(requests, Request{Input: in, OutputDir: outputDir})
	}

	jobs, err := s.sup.Prepare(requests)
	if err != nil {
		return nil, err
	}

	b := &Batch{
		ID:        shortuuid.New(),
		OutputDir: outputDir,
		CreatedAt: time.Now().Unix(),
		jobs:      jobs,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.batches[b.ID] = b
	s.mu.Unlock()

	go func() {
		statuses := s.sup.Run(context.Background(), jobs, s.width)
		counts := map[job.State]int{}
		for _, st := range statuses {
			counts[st.State]++
		}
		s.log.Info("batch %s done: %d completed, %d failed, %d cancelled",
			b.ID, counts[job.StateCompleted], counts[job.StateFailed], counts[job.StateCancelled])
		close(b.done)
	}()

	return b, nil
}

// Get finds a batch by ID.
func (s *Store) Get(id string) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b, nil
}

// List returns every batch, newest first.
func (s *Store) List() []*Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Batch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}
