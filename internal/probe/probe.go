// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package probe queries a media file's total duration via ffprobe.
package probe

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Error wraps any failure to determine a file's duration. A duration of
// zero together with an Error means "duration unknown": callers must keep
// progress indeterminate instead of dividing by zero.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %q: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Duration returns the total duration of path in seconds. On any failure
// it returns 0 and an *Error; the failure is never fatal to a conversion.
func Duration(ctx context.Context, ffprobe, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, &Error{Path: path, Err: err}
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, &Error{Path: path, Err: fmt.Errorf("non-numeric duration %q", strings.TrimSpace(string(out)))}
	}
	if seconds < 0 {
		return 0, &Error{Path: path, Err: fmt.Errorf("negative duration %v", seconds)}
	}

	return seconds, nil
}
