package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanVideoURL(t *testing.T) {
	assert.Equal(t, "https://youtu.be/abc123", CleanVideoURL(" https://youtu.be/abc123&feature=share "))
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", CleanVideoURL("https://www.youtube.com/watch?v=abc&t=42s"))
	assert.Equal(t, "https://youtu.be/abc123", CleanVideoURL("https://youtu.be/abc123"))
}

func TestNormalizeVideoURL(t *testing.T) {
	allowed := []string{"youtube.com", "youtu.be"}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{"short link", "https://youtu.be/abc123", "https://youtu.be/abc123", nil},
		{"www host", "https://www.youtube.com/watch?v=abc&list=x", "https://www.youtube.com/watch?v=abc", nil},
		{"mobile host", "https://m.youtube.com/watch?v=abc", "https://m.youtube.com/watch?v=abc", nil},
		{"host with port", "http://youtube.com:443/watch?v=abc", "http://youtube.com:443/watch?v=abc", nil},
		{"other host", "https://vimeo.com/1", "", ErrUnsupportedHost},
		{"lookalike host", "https://notyoutube.com/watch?v=abc", "", ErrUnsupportedHost},
		{"no scheme", "youtu.be/abc123", "", ErrInvalidURL},
		{"ftp scheme", "ftp://youtu.be/abc123", "", ErrInvalidURL},
		{"free text", "find the intro", "", ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeVideoURL(tt.in, allowed)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHostAllowed_EmptyListRejects(t *testing.T) {
	assert.False(t, HostAllowed("youtube.com", nil))
}
