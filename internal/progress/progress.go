// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package progress parses the line-oriented key=value stream that ffmpeg
// emits on stdout under "-progress pipe:1 -nostats".
package progress

import (
	"container/ring"
	"strconv"
	"strings"
	"sync"
	"time"
)

// timeKey carries the elapsed time in microseconds, despite the name.
const timeKey = "out_time_ms"

// Snapshot is the normalized progress of one conversion.
type Snapshot struct {
	// Fraction is percent complete in [0,100]. Only meaningful when
	// Determinate is true; it never decreases during a run.
	Fraction float64 `json:"fraction"`
	// Remaining is the estimated seconds left, never negative.
	Remaining float64 `json:"remaining_seconds"`
	// Determinate reports whether the total duration was known.
	Determinate bool `json:"determinate"`
}

// Line is a timestamped raw stream line kept for the job report.
type Line struct {
	Timestamp time.Time `json:"timestamp"`
	Data      string    `json:"data"`
}

// Parser consumes progress stream lines. Each line is handled
// independently given the total duration fixed at construction.
type Parser interface {
	// Parse processes one line and returns 1 if it advanced progress.
	Parse(line string) uint64
	Progress() Snapshot
	Log() []Line
}

// Config for a Parser.
type Config struct {
	// TotalSeconds is the probed duration of the input. Zero or negative
	// means unknown: Fraction stays indeterminate.
	TotalSeconds float64
	// LogLines caps the retained raw lines (default 100).
	LogLines int
}

type parser struct {
	total    float64
	logLines int

	mu   sync.RWMutex
	snap Snapshot
	log  *ring.Ring
}

// New creates a Parser.
func New(config Config) Parser {
	p := &parser{
		total:    config.TotalSeconds,
		logLines: config.LogLines,
	}
	if p.logLines <= 0 {
		p.logLines = 100
	}
	p.log = ring.New(p.logLines)
	p.snap.Determinate = p.total > 0
	if p.snap.Determinate {
		p.snap.Remaining = p.total
	}
	return p
}

func (p *parser) Parse(line string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.log.Value = Line{Timestamp: time.Now(), Data: line}
	p.log = p.log.Next()

	key, value, found := strings.Cut(strings.TrimSpace(line), "=")
	if !found || key != timeKey {
		return 0
	}

	us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || us < 0 {
		// Malformed values are ignored, not fatal.
		return 0
	}

	elapsed := float64(us) / 1_000_000

	if p.total > 0 {
		fraction := float64(us) / (p.total * 1_000_000) * 100
		if fraction > 100 {
			fraction = 100
		}
		if fraction > p.snap.Fraction {
			p.snap.Fraction = fraction
		}
		remaining := p.total - elapsed
		if remaining < 0 {
			remaining = 0
		}
		p.snap.Remaining = remaining
	}

	return 1
}

func (p *parser) Progress() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

func (p *parser) Log() []Line {
	var out []Line
	p.mu.RLock()
	p.log.Do(func(v interface{}) {
		if v != nil {
			out = append(out, v.(Line))
		}
	})
	p.mu.RUnlock()
	return out
}
