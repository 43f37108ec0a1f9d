package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"mediabatch/internal/config"
	"mediabatch/internal/controller"
	"mediabatch/internal/engine"
	"mediabatch/internal/engine/httpfetch"
	"mediabatch/internal/engine/torrentfetch"
	"mediabatch/internal/history/sqlite"
	apphttp "mediabatch/internal/http"
	"mediabatch/internal/platform"
	"mediabatch/internal/progress"
	"mediabatch/internal/queue"
	"mediabatch/internal/ratelimit"
	"mediabatch/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	recorder := sqlite.NewRecorder(db)
	if err := recorder.Init(ctx); err != nil {
		logger.Fatalf("init history recorder: %v", err)
	}

	limiter, err := ratelimit.New(cfg.Download.MaxBytesPerSec)
	if err != nil {
		logger.Fatalf("configure rate limit: %v", err)
	}

	jobQueue := queue.New()
	bus := progress.NewBus()
	sink := progress.Multi{bus, progress.NewLogSink(logger)}

	torrentEngine, err := torrentfetch.New(torrentfetch.Config{
		DataDir: cfg.Download.DataDir,
		Logger:  logger,
	}, limiter)
	if err != nil {
		logger.Fatalf("start torrent engine: %v", err)
	}
	defer torrentEngine.Close()

	mux := engine.NewMux()
	mux.Register(httpfetch.New(httpfetch.Config{
		DownloadDir: cfg.Download.DataDir,
		Logger:      logger,
	}, limiter), "http", "https")
	mux.Register(torrentEngine, "magnet")

	ctrl := controller.New(controller.Config{
		ResolveTimeout:   time.Duration(cfg.Download.ResolveTimeoutSec) * time.Second,
		ProgressInterval: time.Duration(cfg.Download.ProgressMillis) * time.Millisecond,
		Logger:           logger,
	}, jobQueue, mux, sink, recorder)
	ctrl.Start(ctx)

	if cfg.Storage.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		archiver := storage.NewArchiver(bus, jobQueue, storageSvc, storage.UploadOptions{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
		}, logger)
		go archiver.Run(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(jobQueue, ctrl, recorder, limiter, platform.NewPlaylistExpander())
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	ctrl.Shutdown()

	logger.Info("bye")
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving completed downloads to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
