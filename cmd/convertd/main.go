// Copyright (c) 2026 quinlayen. All rights reserved.
// Use of this source code is governed by the MIT License.

// convertd is the batch MKV-to-MP4 conversion daemon. The desktop front
// end submits batches and polls progress over the HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/quinlayen/convert-mkv-to-mp4/internal/api"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/batch"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/config"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/logger"
	"github.com/quinlayen/convert-mkv-to-mp4/internal/tools"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	bind := flag.String("bind", "", "Bind address (overrides config)")
	ffmpegBin := flag.String("ffmpeg", "", "FFmpeg binary path (overrides config)")
	ffprobeBin := flag.String("ffprobe", "", "FFprobe binary path (overrides config)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Load config: %v", err)
		}
	}

	bindAddr := cfg.Server.Bind
	if *bind != "" {
		bindAddr = *bind
	}
	ffmpegPath := cfg.Tools.FFmpeg
	if *ffmpegBin != "" {
		ffmpegPath = *ffmpegBin
	}
	ffprobePath := cfg.Tools.FFprobe
	if *ffprobeBin != "" {
		ffprobePath = *ffprobeBin
	}

	lg, err := logger.NewWithFile("convertd", cfg.Log.File)
	if err != nil {
		log.Fatalf("Open log file: %v", err)
	}
	defer lg.Close()

	info, err := tools.Resolve(ffmpegPath, ffprobePath)
	if err != nil {
		log.Fatalf("Toolchain: %v", err)
	}
	lg.Info("using ffmpeg %s (%s), ffprobe %s (%s)",
		info.FFmpeg.Version, info.FFmpeg.Path, info.FFprobe.Version, info.FFprobe.Path)

	sup := batch.NewSupervisor(batch.Config{
		FFmpeg:   info.FFmpeg.Path,
		FFprobe:  info.FFprobe.Path,
		Grace:    time.Duration(cfg.Batch.GraceSeconds) * time.Second,
		LogLines: cfg.Batch.LogLines,
		Logger:   lg,
	})
	store := batch.NewStore(sup, cfg.Batch.Workers, lg)
	handler := api.NewHandler(store, info, cfg.Batch.MaxFiles, lg)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), cors.Default())

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tools", handler.Tools)
		v1.GET("/batch", handler.ListBatches)
		v1.POST("/batch", handler.Submit)
		v1.GET("/batch/:id", handler.GetBatch)
		v1.POST("/batch/:id/cancel", handler.CancelBatch)
		v1.GET("/batch/:id/jobs/:jobid", handler.GetJob)
	}

	srv := &http.Server{Addr: bindAddr, Handler: r}
	go func() {
		lg.Info("listening on %s", bindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("server shutdown: %v", err)
	}

	// Tear down every conversion process before exiting.
	sup.Shutdown()
	lg.Info("all conversion processes terminated")
}
