// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package batch

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/job"
)

// Registry collects every external process handle launched under one
// supervisor. Jobs append on launch; teardown enumerates the handles and
// guarantees none survive. It is scoped to the supervisor's lifetime,
// never a package global.
type Registry struct {
	mu    sync.Mutex
	procs []*os.Process
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry { return &Registry{} }

// Add records a launched process. Implements job.Registrar.
func (r *Registry) Add(proc *os.Process) {
	r.mu.Lock()
	r.procs = append(r.procs, proc)
	r.mu.Unlock()
}

// Handles returns a copy of every recorded handle, exited or not.
func (r *Registry) Handles() []*os.Process {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*os.Process(nil), r.procs...)
}

// Terminate sends a graceful stop to every still-alive process, waits up
// to grace for them to exit, then force-kills survivors. It returns the
// number of processes still alive afterward, which is zero unless the
// operating system refuses the kill.
func (r *Registry) Terminate(grace time.Duration) int {
	procs := r.Handles()

	var alive []*os.Process
	for _, p := range procs {
		if !job.Alive(p.Pid) {
			continue
		}
		alive = append(alive, p)
		if runtime.GOOS == "windows" {
			p.Kill()
		} else {
			if err := p.Signal(os.Interrupt); err != nil {
				p.Kill()
			}
		}
	}
	if len(alive) == 0 {
		return 0
	}

	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if countAlive(alive) == 0 {
			return 0
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, p := range alive {
		if job.Alive(p.Pid) {
			p.Kill()
		}
	}

	// Killed processes need a moment to be reaped before verification.
	killDeadline := time.Now().Add(time.Second)
	for time.Now().Before(killDeadline) {
		if countAlive(alive) == 0 {
			return 0
		}
		time.Sleep(20 * time.Millisecond)
	}
	return countAlive(alive)
}

func countAlive(procs []*os.Process) int {
	n := 0
	for _, p := range procs {
		if job.Alive(p.Pid) {
			n++
		}
	}
	return n
}
