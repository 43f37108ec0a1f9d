package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlaylistURL(t *testing.T) {
	p := NewPlaylistExpander()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/playlist?list=PLabc123", true},
		{"https://www.youtube.com/watch?v=abc&list=PLabc123", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"https://example.com/media.mp4", false},
		{"https://www.youtube.com/watch?list=", false},
		{"://bad url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.IsPlaylistURL(tt.url), tt.url)
	}
}
