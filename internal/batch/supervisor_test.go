// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/job"
)

func fakeTool(t *testing.T, dir, name, script string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("write fake %s: %v", name, err)
	}
	return path
}

// quickFFmpeg succeeds immediately unless the input path contains "bad".
const quickFFmpeg = `
case "$2" in
  *bad*) echo "decode error" >&2; exit 1 ;;
esac
echo "out_time_ms=10000000"
exit 0
`

// slowFFmpeg streams progress lines until interrupted.
const slowFFmpeg = `
i=1
while [ $i -le 200 ]; do
  echo "out_time_ms=${i}000000"
  sleep 0.05
  i=$((i+1))
done
`

func newSupervisor(t *testing.T, ffmpegScript string) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	return NewSupervisor(Config{
		FFmpeg:  fakeTool(t, dir, "ffmpeg", ffmpegScript),
		FFprobe: fakeTool(t, dir, "ffprobe", `echo "10.0"`),
		Grace:   2 * time.Second,
	})
}

func requests(outputDir string, inputs ...string) []Request {
	out := make([]Request, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Request{Input: in, OutputDir: outputDir})
	}
	return out
}

func TestPrepare_Validation(t *testing.T) {
	s := newSupervisor(t, quickFFmpeg)
	outDir := t.TempDir()

	tests := []struct {
		name     string
		requests []Request
		wantErr  error
	}{
		{"empty batch", nil, ErrNoInput},
		{"empty input path", []Request{{Input: "", OutputDir: outDir}}, ErrNoInput},
		{"empty output dir", []Request{{Input: "a.mkv", OutputDir: ""}}, ErrNoOutputDir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Prepare(tt.requests); err != tt.wantErr {
				t.Errorf("Prepare err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPrepare_CreatesOutputDir(t *testing.T) {
	s := newSupervisor(t, quickFFmpeg)
	outDir := filepath.Join(t.TempDir(), "out", "nested")

	jobs, err := s.Prepare(requests(outDir, "a.mkv"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
	if fi, err := os.Stat(outDir); err != nil || !fi.IsDir() {
		t.Errorf("output dir not created: %v", err)
	}
}

func TestRunBatch_OneTerminalStatusPerInput(t *testing.T) {
	s := newSupervisor(t, quickFFmpeg)
	outDir := t.TempDir()

	statuses, err := s.RunBatch(context.Background(),
		requests(outDir, "a.mkv", "b.mkv", "bad.mkv", "c.mkv", "d.mkv"), 2)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	if len(statuses) != 5 {
		t.Fatalf("got %d statuses, want 5", len(statuses))
	}

	counts := map[job.State]int{}
	for _, st := range statuses {
		if !st.State.Terminal() {
			t.Errorf("job %s not terminal: %s", st.ID, st.State)
		}
		counts[st.State]++
	}
	if counts[job.StateCompleted] != 4 || counts[job.StateFailed] != 1 {
		t.Errorf("counts = %v, want 4 completed / 1 failed", counts)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	s := newSupervisor(t, `
echo "out_time_ms=1000000"
sleep 0.3
echo "out_time_ms=9000000"
exit 0
`)
	outDir := t.TempDir()
	const width = 2

	jobs, err := s.Prepare(requests(outDir, "a.mkv", "b.mkv", "c.mkv", "d.mkv", "e.mkv", "f.mkv"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	stop := make(chan struct{})
	maxRunning := make(chan int, 1)
	go func() {
		peak := 0
		for {
			select {
			case <-stop:
				maxRunning <- peak
				return
			default:
			}
			running := 0
			for _, jb := range jobs {
				if jb.State() == job.StateRunning {
					running++
				}
			}
			if running > peak {
				peak = running
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	statuses := s.Run(context.Background(), jobs, width)
	close(stop)

	if len(statuses) != len(jobs) {
		t.Fatalf("got %d statuses, want %d", len(statuses), len(jobs))
	}
	if peak := <-maxRunning; peak > width {
		t.Errorf("observed %d jobs running at once, pool width is %d", peak, width)
	}
}

func TestCancelAll_TerminatesEverything(t *testing.T) {
	s := newSupervisor(t, slowFFmpeg)
	outDir := t.TempDir()

	jobs, err := s.Prepare(requests(outDir, "a.mkv", "b.mkv", "c.mkv"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	done := make(chan []job.Status, 1)
	go func() { done <- s.Run(context.Background(), jobs, 2) }()

	waitForRunning(t, jobs)
	s.CancelAll()

	var statuses []job.Status
	select {
	case statuses = <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after CancelAll")
	}

	for _, st := range statuses {
		if st.State != job.StateCancelled {
			t.Errorf("job %s state = %s, want cancelled", st.Input, st.State)
		}
	}
	for _, p := range s.Registry().Handles() {
		if job.Alive(p.Pid) {
			t.Errorf("process %d still alive after cancel", p.Pid)
		}
	}
}

func TestShutdown_NoOrphanedProcesses(t *testing.T) {
	s := newSupervisor(t, slowFFmpeg)
	outDir := t.TempDir()

	jobs, err := s.Prepare(requests(outDir, "a.mkv", "b.mkv"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	done := make(chan []job.Status, 1)
	go func() { done <- s.Run(context.Background(), jobs, 2) }()

	waitForRunning(t, jobs)
	s.Shutdown()

	for _, p := range s.Registry().Handles() {
		if job.Alive(p.Pid) {
			t.Errorf("process %d survived shutdown", p.Pid)
		}
	}

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestRun_ContextCancelStopsBatch(t *testing.T) {
	s := newSupervisor(t, slowFFmpeg)
	outDir := t.TempDir()

	jobs, err := s.Prepare(requests(outDir, "a.mkv"))
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []job.Status, 1)
	go func() { done <- s.Run(ctx, jobs, 1) }()

	waitForRunning(t, jobs)
	cancel()

	select {
	case statuses := <-done:
		if statuses[0].State != job.StateCancelled {
			t.Errorf("state = %s, want cancelled", statuses[0].State)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func waitForRunning(t *testing.T, jobs []*job.Job) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		for _, jb := range jobs {
			if jb.State() == job.StateRunning {
				// Give the reader a beat to enter the stream loop.
				time.Sleep(100 * time.Millisecond)
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no job reached running state")
}
