package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"
)

const defaultExpandTimeout = 60 * time.Second

// PlaylistExpander turns a playlist URL into the individual video URLs it
// contains. It is a URL-discovery convenience: the result just feeds the
// queue, one job per video.
type PlaylistExpander struct {
	timeout time.Duration
}

func NewPlaylistExpander() *PlaylistExpander {
	return &PlaylistExpander{timeout: defaultExpandTimeout}
}

func (p *PlaylistExpander) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// IsPlaylistURL reports whether the URL carries a playlist list parameter.
func (p *PlaylistExpander) IsPlaylistURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return parsed.Query().Get("list") != ""
}

// Expand fetches the playlist entries and returns one watch URL per video.
func (p *PlaylistExpander) Expand(ctx context.Context, rawURL string) ([]string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse playlist URL: %w", err)
	}
	playlistID := parsed.Query().Get("list")
	if playlistID == "" {
		return nil, fmt.Errorf("no playlist ID in URL: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("get playlist items: %w", err)
	}

	urls := make([]string, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.VideoID) == "" {
			continue
		}
		urls = append(urls, fmt.Sprintf("https://www.youtube.com/watch?v=%s", it.VideoID))
	}
	return urls, nil
}
