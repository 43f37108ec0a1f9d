package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Mux routes engine calls by URL scheme so HTTP media and magnet links can be
// served by different fetchers behind a single interface.
type Mux struct {
	fetchers map[string]Fetcher
}

func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Register binds a fetcher to one or more URL schemes.
func (m *Mux) Register(fetcher Fetcher, schemes ...string) {
	for _, scheme := range schemes {
		m.fetchers[strings.ToLower(scheme)] = fetcher
	}
}

func (m *Mux) Resolve(ctx context.Context, rawURL string) (*ResolveInfo, error) {
	fetcher, err := m.route(rawURL)
	if err != nil {
		return nil, &ResolveError{URL: rawURL, Cause: err}
	}
	return fetcher.Resolve(ctx, rawURL)
}

func (m *Mux) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	fetcher, err := m.route(req.URL)
	if err != nil {
		return nil, &TransferError{Cause: err}
	}
	return fetcher.Transfer(ctx, req)
}

func (m *Mux) route(rawURL string) (Fetcher, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	fetcher, ok := m.fetchers[strings.ToLower(parsed.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no engine for scheme %q", parsed.Scheme)
	}
	return fetcher, nil
}

var _ Fetcher = (*Mux)(nil)
