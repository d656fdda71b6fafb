// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package job

import "sync/atomic"

// Token is a cooperative cancellation flag. It is set at most once and
// never reset; observing it never blocks. The job polls it once per
// progress line, so cancellation latency is bounded by the encoder's
// progress-emission interval.
type Token struct {
	set atomic.Bool
}

// NewToken creates an unset Token.
func NewToken() *Token { return &Token{} }

// Cancel sets the token.
func (t *Token) Cancel() { t.set.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.set.Load() }
