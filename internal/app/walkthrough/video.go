// Package walkthrough holds the non-game mini-experiences: the video player
// and the simulated delivery and fitness apps users click through before
// evaluating them.
package walkthrough

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultThumbnailHost serves YouTube thumbnails.
	DefaultThumbnailHost = "https://img.youtube.com"
	embedHost            = "https://www.youtube.com"
)

// ThumbnailURL is the high resolution thumbnail for a video.
func ThumbnailURL(host, videoID string) string {
	return fmt.Sprintf("%s/vi/%s/maxresdefault.jpg", strings.TrimRight(host, "/"), videoID)
}

// FallbackThumbnailURL is served for every video, even when no high
// resolution image exists.
func FallbackThumbnailURL(host, videoID string) string {
	return fmt.Sprintf("%s/vi/%s/0.jpg", strings.TrimRight(host, "/"), videoID)
}

// EmbedURL is the autoplaying player URL shown once the video starts.
func EmbedURL(videoID string) string {
	return fmt.Sprintf("%s/embed/%s?autoplay=1&rel=0&modestbranding=1", embedHost, videoID)
}

// ─── Thumbnail Resolution ───────────────────────────────────────────────────

// Thumbnails picks the best available thumbnail for a video.
type Thumbnails struct {
	Host   string
	Client *http.Client
}

// NewThumbnails creates a resolver against host with a short timeout.
func NewThumbnails(host string) *Thumbnails {
	if host == "" {
		host = DefaultThumbnailHost
	}
	return &Thumbnails{Host: host, Client: &http.Client{Timeout: 3 * time.Second}}
}

// Resolve returns the high resolution thumbnail when the host has it and the
// fallback otherwise. Lookup failures are logged and never returned.
func (t *Thumbnails) Resolve(ctx context.Context, videoID string) string {
	primary := ThumbnailURL(t.Host, videoID)
	fallback := FallbackThumbnailURL(t.Host, videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, primary, nil)
	if err != nil {
		log.Printf("[walkthrough] thumbnail fallback for %s: %v", videoID, err)
		return fallback
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		log.Printf("[walkthrough] thumbnail fallback for %s: %v", videoID, err)
		return fallback
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[walkthrough] thumbnail fallback for %s: status %d", videoID, resp.StatusCode)
		return fallback
	}
	return primary
}

// ─── Video ──────────────────────────────────────────────────────────────────

// VideoState is the JSON view of a video walkthrough.
type VideoState struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	Thumbnail string `json:"thumbnail"`
	Fallback  string `json:"fallback_thumbnail"`
	EmbedURL  string `json:"embed_url,omitempty"`
	Playing   bool   `json:"playing"`
}

// Video is a thumbnail with a play button. Starting playback is what unlocks
// evaluation; watching to the end is not required.
type Video struct {
	mu        sync.Mutex
	id        string
	title     string
	thumbnail string
	playing   bool
}

// NewVideo creates a video walkthrough using the default thumbnail host.
func NewVideo(videoID, title string) *Video {
	return &Video{id: videoID, title: title, thumbnail: ThumbnailURL(DefaultThumbnailHost, videoID)}
}

// SetThumbnail overrides the thumbnail, typically with Thumbnails.Resolve.
func (v *Video) SetThumbnail(url string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.thumbnail = url
}

// Play starts playback. Returns true the first time.
func (v *Video) Play() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.playing {
		return false
	}
	v.playing = true
	return true
}

// Reset puts the thumbnail back, as after a rejected evaluation.
func (v *Video) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.playing = false
}

func (v *Video) State() VideoState {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := VideoState{
		VideoID:   v.id,
		Title:     v.title,
		Thumbnail: v.thumbnail,
		Fallback:  FallbackThumbnailURL(DefaultThumbnailHost, v.id),
		Playing:   v.playing,
	}
	if v.playing {
		s.EmbedURL = EmbedURL(v.id)
	}
	return s
}
