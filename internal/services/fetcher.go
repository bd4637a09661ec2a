package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hlynes/storyreel/internal/models"
	"github.com/hlynes/storyreel/internal/workspace"
)

// NetworkError is a transport-level fetch failure: DNS, connect, TLS, or a
// broken body read.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// DownloadError is a non-2xx response for an asset URL.
type DownloadError struct {
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s returned status %d", e.URL, e.StatusCode)
}

// Fetcher pulls remote assets into a request workspace.
type Fetcher struct {
	client      *http.Client
	concurrency int
	log         zerolog.Logger
}

func NewFetcher(timeout time.Duration, concurrency int, logger zerolog.Logger) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		concurrency: concurrency,
		log:         logger,
	}
}

// Fetch downloads rawURL into destPath. The body lands in a temporary
// sibling file and is renamed into place, so destPath either holds the
// complete asset or does not exist.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return &NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DownloadError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return &NetworkError{URL: rawURL, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", tmpPath, err)
	}

	return nil
}

// FetchAll downloads every image and then the audio track into ws before any
// encoding starts. Images download a few at a time, but slot i of the result
// always corresponds to images[i], so timeline order matches request order.
// The first failure cancels the rest.
func (f *Fetcher) FetchAll(ctx context.Context, images []models.ImageInput, audioURL string, ws *workspace.Workspace) ([]LocalAsset, string, error) {
	assets := make([]LocalAsset, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	// Each slot is written by exactly one goroutine and read only after Wait.
	for i, img := range images {
		g.Go(func() error {
			dest := ws.Path(fmt.Sprintf("image_%03d%s", i, fileExt(img.URL, ".jpg")))
			f.log.Debug().Str("url", img.URL).Str("dest", dest).Msg("fetching image")
			if err := f.Fetch(gctx, img.URL, dest); err != nil {
				return err
			}
			assets[i] = LocalAsset{FilePath: dest, Duration: img.Duration}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	audioPath := ws.Path("audio" + fileExt(audioURL, ".mp3"))
	f.log.Debug().Str("url", audioURL).Str("dest", audioPath).Msg("fetching audio")
	if err := f.Fetch(ctx, audioURL, audioPath); err != nil {
		return nil, "", err
	}

	return assets, audioPath, nil
}

// fileExt pulls the extension from a URL path, falling back when the URL has
// none. Decoders sniff content, so the extension is cosmetic.
func fileExt(rawURL, fallback string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	return fallback
}
