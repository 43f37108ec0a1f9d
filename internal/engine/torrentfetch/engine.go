package torrentfetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"mediabatch/internal/engine"
	"mediabatch/internal/ratelimit"
)

// Config tunes the magnet-link fetch engine.
type Config struct {
	DataDir      string
	Trackers     []string
	PollInterval time.Duration
	Logger       *logrus.Logger
}

// Engine downloads magnet links with anacrolix/torrent. Pause drops the
// torrent and leaves piece data on disk; on resume the client re-verifies
// the data directory and continues, so the resume token only marks that a
// partial download exists.
type Engine struct {
	cfg    Config
	client *torrent.Client
}

func New(cfg Config, limiter *ratelimit.Limiter) (*Engine, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create torrent data dir: %w", err)
	}

	clientConfig := torrent.NewDefaultClientConfig()
	clientConfig.DataDir = cfg.DataDir
	clientConfig.NoUpload = true
	clientConfig.Seed = false
	if limiter != nil {
		clientConfig.DownloadRateLimiter = downloadLimiter(limiter)
	}

	client, err := torrent.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create torrent client: %w", err)
	}

	return &Engine{cfg: cfg, client: client}, nil
}

func (e *Engine) Close() {
	e.client.Close()
}

func (e *Engine) Resolve(ctx context.Context, magnetURI string) (*engine.ResolveInfo, error) {
	t, err := e.addMagnet(magnetURI)
	if err != nil {
		return nil, &engine.ResolveError{URL: magnetURI, Cause: err}
	}

	select {
	case <-ctx.Done():
		return nil, &engine.ResolveError{URL: magnetURI, Cause: ctx.Err()}
	case <-t.GotInfo():
	}

	info := t.Info()
	if info == nil {
		return nil, &engine.ResolveError{URL: magnetURI, Cause: fmt.Errorf("missing torrent info")}
	}

	return &engine.ResolveInfo{
		Title:      info.BestName(),
		FileName:   info.BestName(),
		BytesTotal: info.TotalLength(),
	}, nil
}

func (e *Engine) Transfer(ctx context.Context, req engine.TransferRequest) (*engine.TransferResult, error) {
	t, err := e.addMagnet(req.URL)
	if err != nil {
		return nil, &engine.TransferError{Cause: err}
	}

	select {
	case <-ctx.Done():
		return nil, engine.ErrCancelled
	case <-t.GotInfo():
	}

	info := t.Info()
	if info == nil {
		return nil, &engine.TransferError{Cause: fmt.Errorf("missing torrent info")}
	}
	name := info.BestName()
	total := info.TotalLength()

	t.DownloadAll()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Drop()
			return &engine.TransferResult{ResumeToken: name}, engine.ErrCancelled
		case <-ticker.C:
		}

		if req.Signal != nil && req.Signal.ShouldCancel() {
			t.Drop()
			return &engine.TransferResult{ResumeToken: name}, engine.ErrCancelled
		}
		if req.Signal != nil && req.Signal.ShouldPause() {
			t.Drop()
			e.cfg.Logger.Infof("torrent %s paused, piece data kept in %s", name, e.cfg.DataDir)
			return &engine.TransferResult{ResumeToken: name}, engine.ErrPaused
		}

		completed := t.BytesCompleted()
		if req.OnProgress != nil {
			req.OnProgress(completed, total)
		}

		if t.BytesMissing() == 0 {
			t.Drop()
			return &engine.TransferResult{OutputPath: filepath.Join(e.cfg.DataDir, name)}, nil
		}
	}
}

// downloadLimiter mirrors the shared limiter into the x/time/rate limiter
// anacrolix consumes, and keeps it in sync with runtime rate changes.
// A rate of zero lifts the ceiling entirely.
func downloadLimiter(limiter *ratelimit.Limiter) *rate.Limiter {
	dl := rate.NewLimiter(rate.Inf, 0)
	apply := func(bytesPerSecond int64) {
		if bytesPerSecond <= 0 {
			dl.SetLimit(rate.Inf)
			return
		}
		dl.SetBurst(int(bytesPerSecond))
		dl.SetLimit(rate.Limit(bytesPerSecond))
	}
	apply(limiter.Rate())
	limiter.OnChange(apply)
	return dl
}

func (e *Engine) addMagnet(magnetURI string) (*torrent.Torrent, error) {
	t, err := e.client.AddMagnet(magnetURI)
	if err != nil {
		return nil, fmt.Errorf("add magnet: %w", err)
	}
	for _, tracker := range e.cfg.Trackers {
		t.AddTrackers([][]string{{tracker}})
	}
	return t, nil
}

var _ engine.Fetcher = (*Engine)(nil)
