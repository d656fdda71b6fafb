// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package batch runs conversion jobs under a bounded worker pool and
// guarantees clean teardown of every external process it launched.
package batch

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/job"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/logger"
)

// DefaultWorkers caps the pool width when none is configured.
const DefaultWorkers = 4

// Request asks for one file conversion into a shared output directory.
type Request struct {
	Input     string
	OutputDir string
}

// Config for a Supervisor.
type Config struct {
	FFmpeg   string
	FFprobe  string
	Grace    time.Duration
	LogLines int
	Logger   logger.Logger
	// OnUpdate receives every job's published updates.
	OnUpdate func(job.Update)
}

// Supervisor creates jobs, fans them out over a fixed-width worker pool,
// and owns the process-handle registry used for bulk cancel and teardown.
type Supervisor struct {
	ffmpeg   string
	ffprobe  string
	grace    time.Duration
	logLines int
	log      logger.Logger
	onUpdate func(job.Update)

	registry *Registry

	mu   sync.Mutex
	jobs []*job.Job
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(cfg Config) *Supervisor {
	s := &Supervisor{
		ffmpeg:   cfg.FFmpeg,
		ffprobe:  cfg.FFprobe,
		grace:    cfg.Grace,
		logLines: cfg.LogLines,
		log:      cfg.Logger,
		onUpdate: cfg.OnUpdate,
		registry: NewRegistry(),
	}
	if s.grace <= 0 {
		s.grace = 5 * time.Second
	}
	if s.log == nil {
		s.log = logger.Nop()
	}
	return s
}

// Prepare validates the requests, creates the output directories, and
// returns one Pending job per request. Validation failures abort before
// any job exists.
func (s *Supervisor) Prepare(requests []Request) ([]*job.Job, error) {
	if len(requests) == 0 {
		return nil, ErrNoInput
	}
	dirs := make(map[string]struct{})
	for _, req := range requests {
		if req.Input == "" {
			return nil, ErrNoInput
		}
		if req.OutputDir == "" {
			return nil, ErrNoOutputDir
		}
		dirs[req.OutputDir] = struct{}{}
	}
	for dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory %q: %w", dir, err)
		}
	}

	jobs := make([]*job.Job, 0, len(requests))
	for _, req := range requests {
		jobs = append(jobs, job.New(job.Config{
			ID:        shortuuid.New(),
			Input:     req.Input,
			OutputDir: req.OutputDir,
			FFmpeg:    s.ffmpeg,
			FFprobe:   s.ffprobe,
			Grace:     s.grace,
			LogLines:  s.logLines,
			Logger:    s.log,
			OnUpdate:  s.onUpdate,
			Register:  s.registry,
		}))
	}

	s.mu.Lock()
	s.jobs = append(s.jobs, jobs...)
	s.mu.Unlock()

	return jobs, nil
}

// Run dispatches the jobs onto width workers and blocks until every job
// reaches a terminal state, then returns one status per job, in request
// order. A width of zero or less means min(DefaultWorkers, len(jobs)).
// Cancelling ctx cancels every job's token.
func (s *Supervisor) Run(ctx context.Context, jobs []*job.Job, width int) []job.Status {
	if width <= 0 {
		width = DefaultWorkers
	}
	if width > len(jobs) {
		width = len(jobs)
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancelJobs(jobs)
		case <-stop:
		}
	}()

	queue := make(chan *job.Job)
	var wg sync.WaitGroup
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for jb := range queue {
				jb.Run(ctx)
			}
		}()
	}

	for _, jb := range jobs {
		queue <- jb
	}
	close(queue)
	wg.Wait()
	close(stop)

	statuses := make([]job.Status, 0, len(jobs))
	for _, jb := range jobs {
		statuses = append(statuses, jb.Snapshot())
	}
	return statuses
}

// RunBatch is Prepare followed by Run: the blocking batch entry point.
func (s *Supervisor) RunBatch(ctx context.Context, requests []Request, width int) ([]job.Status, error) {
	jobs, err := s.Prepare(requests)
	if err != nil {
		return nil, err
	}
	return s.Run(ctx, jobs, width), nil
}

// CancelAll sets every job's cancellation token. It does not wait:
// termination is observed through each job's own terminal transition.
func (s *Supervisor) CancelAll() {
	s.mu.Lock()
	jobs := append([]*job.Job(nil), s.jobs...)
	s.mu.Unlock()
	cancelJobs(jobs)
}

// Shutdown cancels every job and tears down every process handle the
// supervisor still holds: graceful stop, bounded wait, then force-kill.
// After Shutdown returns no launched process is alive.
func (s *Supervisor) Shutdown() {
	s.CancelAll()
	if n := s.registry.Terminate(s.grace); n > 0 {
		s.log.Error("teardown: %d processes survived force-kill", n)
	}
}

// Registry exposes the supervisor's handle registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

func cancelJobs(jobs []*job.Job) {
	for _, jb := range jobs {
		jb.Token().Cancel()
	}
}
