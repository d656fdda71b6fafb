// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

package api

import "github.com/quinlayen/convert-mkv-to-mp4/internal/job"

// SubmitRequest starts a batch conversion.
type SubmitRequest struct {
	Files     []string `json:"files" binding:"required"`
	OutputDir string   `json:"output_dir" binding:"required"`
}

// SubmitResponse acknowledges a started batch. Warning is set when the
// submission exceeded the file cap and the excess was dropped.
type SubmitResponse struct {
	BatchID string       `json:"batch_id"`
	Jobs    []job.Status `json:"jobs"`
	Warning string       `json:"warning,omitempty"`
}

// BatchResponse is one batch with per-job snapshots.
type BatchResponse struct {
	ID        string       `json:"id"`
	OutputDir string       `json:"output_dir"`
	CreatedAt int64        `json:"created_at"`
	Finished  bool         `json:"finished"`
	Jobs      []job.Status `json:"jobs"`
}

// ReportLine is one raw progress stream line.
type ReportLine struct {
	Timestamp int64  `json:"timestamp"`
	Data      string `json:"data"`
}

// JobResponse is one job snapshot plus its recent stream lines.
type JobResponse struct {
	job.Status
	Log []ReportLine `json:"log"`
}

// ErrorResponse for API errors
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
