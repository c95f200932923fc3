package downloader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/mediaq/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Metadata is the subset of the downloader's JSON info we keep.
type Metadata struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Thumbnail  string  `json:"thumbnail"`
	Uploader   string  `json:"uploader"`
	Duration   float64 `json:"duration"`
	WebpageURL string  `json:"webpage_url"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

// Fetcher looks up media metadata without downloading, caching results by URL.
type Fetcher struct {
	runner Runner
	cache  *lru.Cache[string, Metadata]
	logger *log.Logger
}

// NewFetcher creates a [Fetcher] holding up to size entries.
func NewFetcher(runner Runner, size int, logger *log.Logger) (*Fetcher, error) {
	if size <= 0 {
		size = 128
	}
	cache, err := lru.New[string, Metadata](size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{runner: runner, cache: cache, logger: logger}, nil
}

// Fetch returns metadata for rawURL. cookieFile may be empty.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, cookieFile string) (Metadata, error) {
	if m, ok := f.cache.Get(rawURL); ok {
		return m, nil
	}

	args := []string{"--dump-single-json", "--flat-playlist", "--no-warnings", "--skip-download"}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, rawURL)

	stdout, stderr, err := f.runner.Output(ctx, args)
	if err != nil {
		return Metadata{}, withStderr(err, stderr)
	}

	m, err := ParseMetadata(stdout)
	if err != nil {
		return Metadata{}, err
	}
	f.cache.Add(rawURL, m)
	f.logger.Debug("cached metadata", "url", rawURL, "title", m.Title)
	return m, nil
}

// Len returns the number of cached entries.
func (f *Fetcher) Len() int { return f.cache.Len() }

// ParseMetadata decodes `--dump-single-json` output. When no top-level thumbnail is present the last entry
// of the thumbnails list, the highest resolution one, is used.
func ParseMetadata(data []byte) (Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return Metadata{}, fmt.Errorf("%w: metadata: %v", shared.ErrParse, err)
	}
	if m.Thumbnail == "" && len(m.Thumbnails) > 0 {
		m.Thumbnail = m.Thumbnails[len(m.Thumbnails)-1].URL
	}
	m.Thumbnails = nil
	return m, nil
}
