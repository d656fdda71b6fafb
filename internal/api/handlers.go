// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package api is the HTTP surface the front end talks to: batch
// submission, per-job progress snapshots, and bulk cancel.
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/batch"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/logger"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/tools"
)

// Handler holds dependencies
type Handler struct {
	store    *batch.Store
	tools    *tools.Info
	maxFiles int
	log      logger.Logger
}

// NewHandler creates the API handler. maxFiles caps one submission.
func NewHandler(store *batch.Store, info *tools.Info, maxFiles int, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{store: store, tools: info, maxFiles: maxFiles, log: log}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// Submit POST /api/v1/batch
func (h *Handler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	warning := ""
	files := req.Files
	if len(files) > h.maxFiles {
		// Excess files are dropped at submission, never queued.
		warning = fmt.Sprintf("Too many files selected! Converting the first %d files only.", h.maxFiles)
		h.log.Warn("submission capped: %d files requested, limit is %d", len(files), h.maxFiles)
		files = files[:h.maxFiles]
	}

	b, err := h.store.Submit(files, req.OutputDir)
	if err != nil {
		switch err {
		case batch.ErrNoInput:
			errResp(c, http.StatusBadRequest, "No input files selected", "")
		case batch.ErrNoOutputDir:
			errResp(c, http.StatusBadRequest, "No output directory selected", "")
		default:
			errResp(c, http.StatusBadRequest, "Submit failed", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, SubmitResponse{
		BatchID: b.ID,
		Jobs:    b.Statuses(),
		Warning: warning,
	})
}

// ListBatches GET /api/v1/batch
func (h *Handler) ListBatches(c *gin.Context) {
	batches := h.store.List()
	out := make([]BatchResponse, 0, len(batches))
	for _, b := range batches {
		out = append(out, batchToResponse(b))
	}
	c.JSON(http.StatusOK, out)
}

// GetBatch GET /api/v1/batch/:id
func (h *Handler) GetBatch(c *gin.Context) {
	b, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown batch ID", err.Error())
		return
	}
	c.JSON(http.StatusOK, batchToResponse(b))
}

// CancelBatch POST /api/v1/batch/:id/cancel
func (h *Handler) CancelBatch(c *gin.Context) {
	b, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown batch ID", err.Error())
		return
	}

	// Sets every token and returns; jobs report Cancelled on their own.
	b.CancelAll()
	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

// GetJob GET /api/v1/batch/:id/jobs/:jobid
func (h *Handler) GetJob(c *gin.Context) {
	b, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown batch ID", err.Error())
		return
	}
	jb, ok := b.Job(c.Param("jobid"))
	if !ok {
		errResp(c, http.StatusNotFound, "Unknown job ID", "")
		return
	}

	resp := JobResponse{Status: jb.Snapshot()}
	for _, line := range jb.Log() {
		resp.Log = append(resp.Log, ReportLine{
			Timestamp: line.Timestamp.Unix(),
			Data:      line.Data,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Tools GET /api/v1/tools
func (h *Handler) Tools(c *gin.Context) {
	c.JSON(http.StatusOK, h.tools)
}

func batchToResponse(b *batch.Batch) BatchResponse {
	return BatchResponse{
		ID:        b.ID,
		OutputDir: b.OutputDir,
		CreatedAt: b.CreatedAt,
		Finished:  b.Finished(),
		Jobs:      b.Statuses(),
	}
}
