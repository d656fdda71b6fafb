// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package job owns the lifecycle of one file conversion: it probes the
// input duration, launches the external encoder, streams its progress
// output, and supports cooperative cancellation.
package job

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/logger"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/probe"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/progress"
)

// State of a conversion job. Completed, Failed and Cancelled are
// terminal: once reached, no further transition occurs.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

func (s State) String() string { return string(s) }

// Terminal reports whether no further transition can occur.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Update is an immutable progress snapshot published to the sink on
// every parsed progress line and every state transition.
type Update struct {
	JobID       string  `json:"job_id"`
	Input       string  `json:"input"`
	State       State   `json:"state"`
	Percent     float64 `json:"percent"`
	Remaining   float64 `json:"remaining_seconds"`
	Determinate bool    `json:"determinate"`
	StatusText  string  `json:"status_text"`
}

// Status is the full read model of a job, safe to request from any
// goroutine while the job runs.
type Status struct {
	ID      string  `json:"id"`
	Input   string  `json:"input"`
	Output  string  `json:"output"`
	State   State   `json:"state"`
	Percent float64 `json:"percent"`
	// Remaining is seconds left; meaningful only when Determinate.
	Remaining   float64 `json:"remaining_seconds"`
	Determinate bool    `json:"determinate"`
	StatusText  string  `json:"status_text"`
	Error       string  `json:"error,omitempty"`
	CPU         float64 `json:"cpu_usage"`
	Memory      uint64  `json:"memory_bytes"`
}

// Registrar receives the external process handle right after launch.
// The supervisor uses it to guarantee teardown of every process it owns.
type Registrar interface {
	Add(proc *os.Process)
}

// Config for a Job.
type Config struct {
	ID        string
	Input     string
	OutputDir string
	FFmpeg    string
	FFprobe   string
	// Grace bounds the wait between a terminate request and force-kill
	// (default 5s).
	Grace    time.Duration
	LogLines int
	Logger   logger.Logger
	// OnUpdate, when set, receives every published Update.
	OnUpdate func(Update)
	Register Registrar
}

// Job converts one input file. Its fields are mutated only by the
// worker goroutine executing Run; other goroutines read snapshots.
type Job struct {
	id      string
	input   string
	output  string
	ffmpeg  string
	ffprobe string
	grace   time.Duration

	logLines int
	log      logger.Logger
	onUpdate func(Update)
	register Registrar
	token    *Token
	monitor  Monitor

	mu     sync.Mutex
	state  State
	proc   *os.Process
	parser progress.Parser
	err    error

	killMu    sync.Mutex
	killTimer *time.Timer
}

// New creates a Pending job. The output path is the input's basename
// with an .mp4 extension inside OutputDir.
func New(cfg Config) *Job {
	base := filepath.Base(cfg.Input)
	out := strings.TrimSuffix(base, filepath.Ext(base)) + ".mp4"

	j := &Job{
		id:       cfg.ID,
		input:    cfg.Input,
		output:   filepath.Join(cfg.OutputDir, out),
		ffmpeg:   cfg.FFmpeg,
		ffprobe:  cfg.FFprobe,
		grace:    cfg.Grace,
		logLines: cfg.LogLines,
		log:      cfg.Logger,
		onUpdate: cfg.OnUpdate,
		register: cfg.Register,
		token:    NewToken(),
		monitor:  NewSysMonitor(),
		state:    StatePending,
	}
	if j.grace <= 0 {
		j.grace = 5 * time.Second
	}
	if j.log == nil {
		j.log = logger.Nop()
	}
	if j.ffmpeg == "" {
		j.ffmpeg = "ffmpeg"
	}
	if j.ffprobe == "" {
		j.ffprobe = "ffprobe"
	}
	return j
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Input returns the input path.
func (j *Job) Input() string { return j.input }

// OutputPath returns the derived output path.
func (j *Job) OutputPath() string { return j.output }

// Token returns the job's cancellation token.
func (j *Job) Token() *Token { return j.token }

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Run executes the conversion to a terminal state and returns it. It
// blocks on the duration probe, the encoder launch, and each progress
// line read.
func (j *Job) Run(ctx context.Context) State {
	if j.token.Cancelled() {
		j.setState(StateCancelled)
		return StateCancelled
	}
	if err := j.setState(StateRunning); err != nil {
		return j.State()
	}

	total, err := probe.Duration(ctx, j.ffprobe, j.input)
	if err != nil {
		// Duration unknown: progress stays indeterminate, job proceeds.
		j.log.Error("probe failed: %v", err)
	}

	parser := progress.New(progress.Config{TotalSeconds: total, LogLines: j.logLines})
	j.mu.Lock()
	j.parser = parser
	j.mu.Unlock()

	j.log.Info("starting conversion: %s -> %s", j.input, j.output)

	cmd := exec.Command(j.ffmpeg, "-i", j.input, j.output, "-progress", "pipe:1", "-nostats")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return j.fail(fmt.Errorf("launch %s: %w", j.input, err))
	}
	if err := cmd.Start(); err != nil {
		return j.fail(fmt.Errorf("launch %s: %w", j.input, err))
	}

	j.mu.Lock()
	j.proc = cmd.Process
	j.mu.Unlock()

	if j.register != nil {
		j.register.Add(cmd.Process)
	}
	if err := j.monitor.Start(cmd.Process.Pid); err != nil {
		j.log.Debug("monitor start: %v", err)
	}
	defer j.monitor.Stop()

	cancelled, streamErr := j.readLoop(stdout, parser, cmd.Process)

	waitErr := cmd.Wait()
	j.stopKillTimer()

	switch {
	case cancelled, j.token.Cancelled():
		j.setState(StateCancelled)
		j.log.Info("conversion cancelled: %s", j.input)
		return StateCancelled
	case streamErr != nil:
		return j.fail(fmt.Errorf("progress stream %s: %w", j.input, streamErr))
	case waitErr != nil:
		return j.fail(fmt.Errorf("conversion failed %s: %w (%s)", j.input, waitErr, lastLine(stderr.String())))
	}

	j.setState(StateCompleted)
	j.log.Info("conversion successful: %s -> %s", j.input, j.output)
	return StateCompleted
}

// readLoop scans the progress stream line by line, polling the token on
// each line. It returns cancelled=true after requesting termination.
func (j *Job) readLoop(r io.Reader, parser progress.Parser, proc *os.Process) (cancelled bool, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if j.token.Cancelled() {
			j.terminate(proc)
			// Drain so the encoder does not block on a full pipe
			// while shutting down.
			io.Copy(io.Discard, r)
			return true, nil
		}
		if parser.Parse(scanner.Text()) != 0 {
			j.publish()
		}
	}
	if j.token.Cancelled() {
		j.terminate(proc)
		return true, nil
	}
	return false, scanner.Err()
}

// terminate requests a graceful stop and arms a force-kill after the
// grace period, following the interrupt-then-kill escalation.
func (j *Job) terminate(proc *os.Process) {
	if runtime.GOOS == "windows" {
		proc.Kill()
		return
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		proc.Kill()
		return
	}
	j.killMu.Lock()
	j.killTimer = time.AfterFunc(j.grace, func() {
		proc.Kill()
	})
	j.killMu.Unlock()
}

func (j *Job) stopKillTimer() {
	j.killMu.Lock()
	if j.killTimer != nil {
		j.killTimer.Stop()
		j.killTimer = nil
	}
	j.killMu.Unlock()
}

func (j *Job) fail(err error) State {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.log.Error("%v", err)
	j.setState(StateFailed)
	return StateFailed
}

func (j *Job) setState(next State) error {
	j.mu.Lock()

	valid := false
	switch j.state {
	case StatePending:
		valid = next == StateRunning || next == StateCancelled
	case StateRunning:
		valid = next.Terminal()
	}
	if !valid {
		prev := j.state
		j.mu.Unlock()
		return fmt.Errorf("can't change from %s to %s", prev, next)
	}

	j.state = next
	if next.Terminal() {
		// The process handle is owned only while Running.
		j.proc = nil
	}
	j.mu.Unlock()

	j.publish()
	return nil
}

// publish delivers an immutable snapshot to the update sink.
func (j *Job) publish() {
	if j.onUpdate == nil {
		return
	}
	s := j.Snapshot()
	j.onUpdate(Update{
		JobID:       s.ID,
		Input:       s.Input,
		State:       s.State,
		Percent:     s.Percent,
		Remaining:   s.Remaining,
		Determinate: s.Determinate,
		StatusText:  s.StatusText,
	})
}

// Snapshot returns the job's read model.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	state := j.state
	parser := j.parser
	err := j.err
	j.mu.Unlock()

	s := Status{
		ID:     j.id,
		Input:  j.input,
		Output: j.output,
		State:  state,
	}
	if err != nil {
		s.Error = err.Error()
	}
	if parser != nil {
		snap := parser.Progress()
		s.Percent = snap.Fraction
		s.Remaining = snap.Remaining
		s.Determinate = snap.Determinate
	}

	switch state {
	case StatePending:
		s.StatusText = "Pending"
	case StateRunning:
		if s.Determinate {
			s.StatusText = fmt.Sprintf("Time left: %dm %ds", int(s.Remaining)/60, int(s.Remaining)%60)
		} else {
			s.StatusText = "Converting"
		}
		s.CPU, s.Memory = j.monitor.Current()
	case StateCompleted:
		s.Percent = 100
		s.Remaining = 0
		s.StatusText = "Completed"
	case StateFailed:
		s.StatusText = "Error"
	case StateCancelled:
		s.StatusText = "Cancelled"
	}

	return s
}

// Log returns the recent raw progress stream lines.
func (j *Job) Log() []progress.Line {
	j.mu.Lock()
	parser := j.parser
	j.mu.Unlock()
	if parser == nil {
		return nil
	}
	return parser.Log()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
