package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colombo-hci/slopdetect/internal/analyzer"
	"github.com/colombo-hci/slopdetect/internal/api"
	"github.com/colombo-hci/slopdetect/internal/api/handler"
	"github.com/colombo-hci/slopdetect/internal/config"
	"github.com/colombo-hci/slopdetect/internal/dedup"
	"github.com/colombo-hci/slopdetect/internal/detector"
	"github.com/colombo-hci/slopdetect/internal/domain"
	"github.com/colombo-hci/slopdetect/internal/downloader"
	"github.com/colombo-hci/slopdetect/internal/filestore"
	"github.com/colombo-hci/slopdetect/internal/fusion"
	"github.com/colombo-hci/slopdetect/internal/pipeline"
	"github.com/colombo-hci/slopdetect/internal/registry"
	"github.com/colombo-hci/slopdetect/internal/repository"
	"github.com/colombo-hci/slopdetect/internal/service"
	"github.com/colombo-hci/slopdetect/internal/storage"
	"github.com/colombo-hci/slopdetect/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("slopdetect %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting slopdetect",
		"version", Version,
		"build_time", BuildTime,
	)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	for _, dir := range []string{cfg.Storage.BasePath, cfg.Storage.TempPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create storage directory %s: %w", dir, err)
		}
	}

	repo, err := repository.NewSQLiteMediaRepository(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open media repository: %w", err)
	}
	defer repo.Close()

	var blobs storage.BlobStore
	switch cfg.Storage.Backend {
	case "s3":
		s3, err := storage.NewS3Store(context.Background(), cfg.Storage.S3, cfg.Storage.TempPath, logger)
		if err != nil {
			return fmt.Errorf("init s3 storage: %w", err)
		}
		blobs = s3
	default:
		blobs = storage.NewLocalStore()
	}

	index := dedup.NewIndex(logger)
	reg := registry.New()

	downloaders := map[domain.MediaType]downloader.Downloader{
		domain.MediaTypeImage: downloader.NewImageDownloader(cfg.Download, cfg.Storage.BasePath, index, logger),
		domain.MediaTypeVideo: downloader.NewVideoDownloader(cfg.Download, cfg.Storage.BasePath, index, logger),
	}

	fsClient := filestore.NewHTTPClient(cfg.FileStore)
	uploader := filestore.NewUploader(fsClient, repo, cfg.FileStore, logger)

	pl := pipeline.New(index, reg, repo, blobs, uploader, downloaders, logger)

	factory := detector.NewFactory()
	factory.Register(domain.MediaTypeImage, detector.NewHTTPDetector(cfg.Detector, domain.MediaTypeImage))
	factory.Register(domain.MediaTypeVideo, detector.NewHTTPDetector(cfg.Detector, domain.MediaTypeVideo))
	defer factory.Close()

	// Separate pools per modality so a burst of slow video inference
	// never starves image analysis.
	imagePool := worker.NewPool(worker.Config{Workers: cfg.Analysis.MaxConcurrentImage}, logger.With("pool", "image"))
	videoPool := worker.NewPool(worker.Config{Workers: cfg.Analysis.MaxConcurrentVideo}, logger.With("pool", "video"))
	imagePool.Start()
	videoPool.Start()
	defer imagePool.Stop(10 * time.Second)
	defer videoPool.Stop(10 * time.Second)

	analyzers := map[domain.MediaType]*analyzer.MediaAnalyzer{
		domain.MediaTypeImage: analyzer.NewMediaAnalyzer(factory, domain.MediaTypeImage, imagePool, cfg.Detector.InferenceTimeout, logger),
		domain.MediaTypeVideo: analyzer.NewMediaAnalyzer(factory, domain.MediaTypeVideo, videoPool, cfg.Detector.InferenceTimeout, logger),
	}
	batchSvc := analyzer.NewBatchService(reg, repo, blobs, analyzers, cfg.Storage.BasePath, logger)

	textDet := detector.NewHTTPTextDetector(cfg.Detector)
	fuser := fusion.New(cfg.Fusion, logger)

	detectionSvc := service.NewDetectionService(pl, batchSvc, textDet, fuser, logger)

	detectHandler := handler.NewDetectHandler(detectionSvc, logger)
	healthHandler := handler.NewHealthHandler(reg)

	router := api.NewRouter(detectHandler, healthHandler, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
