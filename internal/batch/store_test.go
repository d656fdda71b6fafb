// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package batch

import (
	"testing"
	"time"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/job"
)

func TestStore_SubmitRunsToCompletion(t *testing.T) {
	s := NewStore(newSupervisor(t, quickFFmpeg), 2, nil)

	b, err := s.Submit([]string{"a.mkv", "b.mkv"}, t.TempDir())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if b.ID == "" {
		t.Error("batch has no ID")
	}

	select {
	case <-b.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("batch did not finish")
	}

	if !b.Finished() {
		t.Error("Finished() = false after Done closed")
	}

	statuses := b.Statuses()
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	for _, st := range statuses {
		if st.State != job.StateCompleted {
			t.Errorf("job %s state = %s", st.Input, st.State)
		}
	}
}

func TestStore_GetAndList(t *testing.T) {
	s := NewStore(newSupervisor(t, quickFFmpeg), 2, nil)

	b, err := s.Submit([]string{"a.mkv"}, t.TempDir())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got, err := s.Get(b.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != b {
		t.Error("Get returned a different batch")
	}

	if _, err := s.Get("nope"); err != ErrNotFound {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}

	if l := s.List(); len(l) != 1 || l[0] != b {
		t.Errorf("List = %v", l)
	}

	<-b.Done()
}

func TestStore_SubmitValidation(t *testing.T) {
	s := NewStore(newSupervisor(t, quickFFmpeg), 2, nil)

	if _, err := s.Submit(nil, t.TempDir()); err != ErrNoInput {
		t.Errorf("empty inputs err = %v, want ErrNoInput", err)
	}
	if _, err := s.Submit([]string{"a.mkv"}, ""); err != ErrNoOutputDir {
		t.Errorf("empty output dir err = %v, want ErrNoOutputDir", err)
	}
}

func TestBatch_JobLookupAndCancel(t *testing.T) {
	s := NewStore(newSupervisor(t, slowFFmpeg), 2, nil)

	b, err := s.Submit([]string{"a.mkv", "b.mkv"}, t.TempDir())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	jobs := b.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs", len(jobs))
	}
	if jb, ok := b.Job(jobs[0].ID()); !ok || jb != jobs[0] {
		t.Error("Job lookup failed")
	}
	if _, ok := b.Job("nope"); ok {
		t.Error("Job lookup found unknown ID")
	}

	waitForRunning(t, jobs)
	b.CancelAll()

	select {
	case <-b.Done():
	case <-time.After(15 * time.Second):
		t.Fatal("batch did not finish after cancel")
	}

	for _, st := range b.Statuses() {
		if st.State != job.StateCancelled {
			t.Errorf("job %s state = %s, want cancelled", st.Input, st.State)
		}
	}
}
