// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// Package tools resolves and inspects the external ffmpeg/ffprobe
// binaries at startup, so a misconfigured path fails fast instead of
// failing every job.
package tools

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

var versionRe = regexp.MustCompile(`^ff\w+ version (\S+)`)

// Binary describes one resolved external tool.
type Binary struct {
	Path    string `json:"path"`
	Version string `json:"version"`
}

// Info describes the transcoding toolchain in use.
type Info struct {
	FFmpeg  Binary `json:"ffmpeg"`
	FFprobe Binary `json:"ffprobe"`
}

// Resolve looks up both binaries on PATH and queries their versions.
func Resolve(ffmpeg, ffprobe string) (*Info, error) {
	fm, err := resolveOne(ffmpeg)
	if err != nil {
		return nil, fmt.Errorf("invalid ffmpeg binary: %w", err)
	}
	fp, err := resolveOne(ffprobe)
	if err != nil {
		return nil, fmt.Errorf("invalid ffprobe binary: %w", err)
	}
	return &Info{FFmpeg: fm, FFprobe: fp}, nil
}

func resolveOne(name string) (Binary, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return Binary{}, err
	}

	b := Binary{Path: path}

	out, err := exec.Command(path, "-version").Output()
	if err != nil {
		return Binary{}, fmt.Errorf("%s -version: %w", path, err)
	}
	b.Version = parseVersion(string(out))
	return b, nil
}

// parseVersion extracts the version token from the first line of
// "-version" output, e.g. "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	if m := versionRe.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
		return m[1]
	}
	return "unknown"
}
