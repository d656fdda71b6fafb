// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package batch

import "errors"

var (
	ErrNoInput     = errors.New("no input files selected")
	ErrNoOutputDir = errors.New("no output directory selected")
	ErrNotFound    = errors.New("batch not found")
)
