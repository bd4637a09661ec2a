package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ConfigError means the storage client is missing required settings, so no
// publish can succeed.
type ConfigError struct {
	Missing string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("storage not configured: %s missing", e.Missing)
}

// UploadError is a non-success response from the storage API. Body holds the
// response text for diagnostics.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed with status %d", e.StatusCode)
}

// UploadResult describes a published artifact.
type UploadResult struct {
	PublicURL string
	ByteSize  int64
}

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	log        zerolog.Logger
}

func New(url, serviceKey, bucket string, timeout time.Duration, logger zerolog.Logger) *Storage {
	return &Storage{
		url:        url,
		serviceKey: serviceKey,
		Bucket:     bucket,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log: logger,
	}
}

// Publish writes data under key in the bucket. The write is an upsert, so
// publishing to the same key twice simply replaces the object. There is
// exactly one attempt; the caller sees every failure.
func (s *Storage) Publish(ctx context.Context, key string, data []byte, contentType string) (*UploadResult, error) {
	if s.url == "" {
		return nil, &ConfigError{Missing: "storage endpoint URL"}
	}
	if s.serviceKey == "" {
		return nil, &ConfigError{Missing: "storage service key"}
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, key)

	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &UploadError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	s.log.Info().Str("key", key).Int("bytes", len(data)).Msg("artifact published")

	return &UploadResult{
		PublicURL: s.GetPublicURL(key),
		ByteSize:  int64(len(data)),
	}, nil
}

// PublishFile reads a local file fully into memory and publishes it under
// key. The public URL goes back to the caller only after the storage API
// acknowledges the write.
func (s *Storage) PublishFile(ctx context.Context, key, localPath, contentType string) (*UploadResult, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", localPath, err)
	}

	return s.Publish(ctx, key, data, contentType)
}

// GetPublicURL returns the public URL for a key
func (s *Storage) GetPublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, key)
}
