package httpfetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"mediabatch/internal/engine"
	"mediabatch/internal/ratelimit"
)

const defaultChunkSize = 32 * 1024

// Config tunes the direct HTTP(S) fetch engine.
type Config struct {
	DownloadDir string
	Client      *http.Client
	ChunkSize   int
	Logger      *logrus.Logger
}

// Engine transfers media served over plain HTTP(S). Partial data is staged
// in a .part file; the resume token is the byte offset already on disk.
type Engine struct {
	cfg     Config
	limiter *ratelimit.Limiter
}

func New(cfg Config, limiter *ratelimit.Limiter) *Engine {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Engine{cfg: cfg, limiter: limiter}
}

func (e *Engine) Resolve(ctx context.Context, rawURL string) (*engine.ResolveInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &engine.ResolveError{URL: rawURL, Cause: err}
	}

	resp, err := e.cfg.Client.Do(req)
	if err != nil {
		return nil, &engine.ResolveError{URL: rawURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &engine.ResolveError{URL: rawURL, Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	info := &engine.ResolveInfo{
		FileName: fileNameFor(rawURL, resp.Header),
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
			info.BytesTotal = size
		}
	}
	return info, nil
}

func (e *Engine) Transfer(ctx context.Context, req engine.TransferRequest) (*engine.TransferResult, error) {
	offset := parseToken(req.ResumeToken)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &engine.TransferError{Cause: err}
	}
	if offset > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.cfg.Client.Do(httpReq)
	if err != nil {
		return nil, &engine.TransferError{Cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK:
		// server ignored the range request, start over
		offset = 0
	default:
		return nil, &engine.TransferError{Cause: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	total := int64(0)
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}

	finalPath := filepath.Join(e.cfg.DownloadDir, fileNameFor(req.URL, resp.Header))
	partPath := finalPath + ".part"
	if err := os.MkdirAll(e.cfg.DownloadDir, 0o755); err != nil {
		return nil, &engine.TransferError{Cause: fmt.Errorf("create download dir: %w", err)}
	}

	file, err := os.OpenFile(partPath, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &engine.TransferError{Cause: fmt.Errorf("open staging file: %w", err)}
	}
	if err := file.Truncate(offset); err != nil {
		_ = file.Close()
		return nil, &engine.TransferError{Cause: fmt.Errorf("truncate staging file: %w", err)}
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		_ = file.Close()
		return nil, &engine.TransferError{Cause: fmt.Errorf("seek staging file: %w", err)}
	}

	buf := make([]byte, e.cfg.ChunkSize)
	for {
		if req.Signal != nil && req.Signal.ShouldCancel() {
			_ = file.Close()
			return &engine.TransferResult{ResumeToken: formatToken(offset)}, engine.ErrCancelled
		}
		if req.Signal != nil && req.Signal.ShouldPause() {
			if err := file.Close(); err != nil {
				return nil, &engine.TransferError{Cause: fmt.Errorf("close staging file: %w", err)}
			}
			return &engine.TransferResult{ResumeToken: formatToken(offset)}, engine.ErrPaused
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := file.Write(buf[:n]); err != nil {
				_ = file.Close()
				return &engine.TransferResult{ResumeToken: formatToken(offset)},
					&engine.TransferError{Cause: fmt.Errorf("write staging file: %w", err)}
			}
			offset += int64(n)
			if req.OnProgress != nil {
				req.OnProgress(offset, total)
			}
			if e.limiter != nil {
				if sleep := e.limiter.Acquire(int64(n)); sleep > 0 {
					select {
					case <-time.After(sleep):
					case <-ctx.Done():
					}
				}
			}
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = file.Close()
			if ctx.Err() != nil {
				return &engine.TransferResult{ResumeToken: formatToken(offset)}, engine.ErrCancelled
			}
			return &engine.TransferResult{ResumeToken: formatToken(offset)},
				&engine.TransferError{Cause: readErr}
		}
	}

	if err := file.Close(); err != nil {
		return nil, &engine.TransferError{Cause: fmt.Errorf("close staging file: %w", err)}
	}
	if err := os.Rename(partPath, finalPath); err != nil {
		return nil, &engine.TransferError{Cause: fmt.Errorf("finalize download: %w", err)}
	}

	e.cfg.Logger.Infof("downloaded %s (%d bytes)", finalPath, offset)
	return &engine.TransferResult{OutputPath: finalPath}, nil
}

// fileNameFor derives the output name from Content-Disposition, falling back
// to the URL path, then a generic name with an extension inferred from the
// content type.
func fileNameFor(rawURL string, header http.Header) string {
	if cd := header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}

	if parsed, err := url.Parse(rawURL); err == nil {
		if name := filepath.Base(parsed.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}

	name := "download"
	if ct := header.Get("Content-Type"); ct != "" {
		mediaType := strings.Split(ct, ";")[0]
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return name
}

func parseToken(token string) int64 {
	offset, err := strconv.ParseInt(token, 10, 64)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

func formatToken(offset int64) string {
	return strconv.FormatInt(offset, 10)
}

var _ engine.Fetcher = (*Engine)(nil)
