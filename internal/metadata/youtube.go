// Package metadata enriches playlist entries with best-effort video metadata.
// A failed lookup degrades to an item without title/thumbnail/duration, never
// to a failed add.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// VideoMetadata is the best-effort result of a lookup.
type VideoMetadata struct {
	Title           string
	ThumbnailURL    string
	DurationSeconds int
}

// Fetcher resolves metadata for a video URL. A (nil, nil) return means "no
// metadata available" and is not an error.
type Fetcher interface {
	Fetch(ctx context.Context, videoURL string) (*VideoMetadata, error)
}

var (
	shortURLPattern = regexp.MustCompile(`youtu\.be/([^?&]+)`)
	longURLPattern  = regexp.MustCompile(`[?&]v=([^&]+)`)
	isoDuration     = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
)

// YouTubeFetcher queries the YouTube Data API v3.
type YouTubeFetcher struct {
	apiKey  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewYouTubeFetcher creates a fetcher. An empty apiKey disables lookups
// (Fetch returns nil metadata).
func NewYouTubeFetcher(apiKey string, log *zap.Logger) *YouTubeFetcher {
	return &YouTubeFetcher{
		apiKey:  apiKey,
		baseURL: "https://www.googleapis.com/youtube/v3",
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

type videosResponse struct {
	Items []struct {
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

// Fetch looks up title and duration for the video behind videoURL.
func (f *YouTubeFetcher) Fetch(ctx context.Context, videoURL string) (*VideoMetadata, error) {
	videoID := extractVideoID(videoURL)
	if videoID == "" || f.apiKey == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/videos?part=snippet,contentDetails&id=%s&key=%s",
		f.baseURL, url.QueryEscape(videoID), url.QueryEscape(f.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("metadata request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metadata fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch: unexpected status %d", resp.StatusCode)
	}

	var body videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("metadata decode: %w", err)
	}
	if len(body.Items) == 0 {
		return nil, nil
	}

	item := body.Items[0]
	return &VideoMetadata{
		Title:           item.Snippet.Title,
		ThumbnailURL:    "https://img.youtube.com/vi/" + videoID + "/mqdefault.jpg",
		DurationSeconds: parseISODuration(item.ContentDetails.Duration),
	}, nil
}

// extractVideoID handles youtu.be/<id> and ?v=<id> URL forms.
func extractVideoID(videoURL string) string {
	if videoURL == "" {
		return ""
	}
	if m := shortURLPattern.FindStringSubmatch(videoURL); m != nil {
		return m[1]
	}
	if m := longURLPattern.FindStringSubmatch(videoURL); m != nil {
		return m[1]
	}
	return ""
}

// parseISODuration converts an ISO-8601 duration like PT1H2M3S to seconds.
func parseISODuration(iso string) int {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	return h*3600 + min*60 + s
}
