// Package assets downloads the raw recording assets behind a Loom share URL.
package assets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"loom_autopublisher/generator"
)

const (
	// DefaultCDNBaseURL is the Loom CDN root.
	DefaultCDNBaseURL = "https://cdn.loom.com"
	defaultTimeout    = 60 * time.Second
)

var idPattern = regexp.MustCompile(`loom\.com/(?:share|embed)/([a-f0-9]{32})`)

// ErrInvalidShareURL is returned for URLs without a recording ID.
var ErrInvalidShareURL = fmt.Errorf("invalid Loom share URL: %w", generator.ErrInvalidInput)

// FetchError reports a non-2xx response for one asset.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: http %d", e.URL, e.Status)
}

// Assets are the raw resources of one recording.
type Assets struct {
	ID         string
	Video      []byte
	Transcript generator.Transcript
	Thumbnail  []byte
}

// ExtractID returns the 32-char recording ID embedded in a share or embed URL.
func ExtractID(shareURL string) (string, error) {
	m := idPattern.FindStringSubmatch(shareURL)
	if m == nil {
		return "", ErrInvalidShareURL
	}
	return m[1], nil
}

// Fetcher downloads recording assets from the CDN.
type Fetcher struct {
	client  *http.Client
	baseURL string
}

// NewFetcher creates a Fetcher. Empty baseURL selects the Loom CDN; nil
// client selects a client with a 60s timeout.
func NewFetcher(client *http.Client, baseURL string) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultCDNBaseURL
	}
	return &Fetcher{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Fetch downloads video, transcript and thumbnail concurrently. The first
// failure cancels the remaining downloads.
func (f *Fetcher) Fetch(ctx context.Context, shareURL string) (*Assets, error) {
	id, err := ExtractID(shareURL)
	if err != nil {
		return nil, err
	}

	out := &Assets{ID: id}
	var transcriptRaw []byte

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := f.get(gctx, fmt.Sprintf("%s/sessions/transcoded/%s/720.mp4", f.baseURL, id))
		out.Video = b
		return err
	})
	g.Go(func() error {
		b, err := f.get(gctx, fmt.Sprintf("%s/sessions/transcripts/%s.json", f.baseURL, id))
		transcriptRaw = b
		return err
	})
	g.Go(func() error {
		b, err := f.get(gctx, fmt.Sprintf("%s/sessions/thumbnails/%s-with-play.jpg", f.baseURL, id))
		out.Thumbnail = b
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch assets %s: %w", id, err)
	}

	transcript, err := DecodeTranscript(transcriptRaw)
	if err != nil {
		return nil, fmt.Errorf("fetch assets %s: %w", id, err)
	}
	out.Transcript = transcript
	return out, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: url, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// DecodeTranscript accepts either a JSON array of segments or an object
// holding them under "phrases" with "value" texts.
func DecodeTranscript(raw []byte) (generator.Transcript, error) {
	var segments generator.Transcript
	arrErr := json.Unmarshal(raw, &segments)
	if arrErr == nil {
		return segments, nil
	}

	var wrapped struct {
		Phrases []struct {
			Value string  `json:"value"`
			TS    float64 `json:"ts"`
		} `json:"phrases"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", errors.Join(arrErr, err))
	}
	out := make(generator.Transcript, 0, len(wrapped.Phrases))
	for _, p := range wrapped.Phrases {
		out = append(out, generator.Segment{Text: p.Value, Start: p.TS})
	}
	return out, nil
}
