package models

import (
	"errors"
	"fmt"
)

// Defaults applied to omitted request fields.
const (
	DefaultImageDuration = 3.0                  // seconds per still
	DefaultOutputPath    = "stories/output.mp4" // storage key
	DefaultWidth         = 1920
	DefaultHeight        = 1080
	DefaultFPS           = 25
)

// ImageInput is one still in the slideshow: where to fetch it and how long
// it stays on screen.
type ImageInput struct {
	URL      string  `json:"url"`
	Duration float64 `json:"duration,omitempty"` // seconds, default 3
}

// VideoRequest is the POST /create-video payload.
type VideoRequest struct {
	Images     []ImageInput `json:"images"`
	AudioURL   string       `json:"audioUrl"`
	OutputPath string       `json:"outputPath,omitempty"` // default "stories/output.mp4"
	Width      int          `json:"width,omitempty"`      // default 1920
	Height     int          `json:"height,omitempty"`     // default 1080
	FPS        int          `json:"fps,omitempty"`        // default 25
}

// Normalize fills omitted fields with their defaults.
func (r *VideoRequest) Normalize() {
	for i := range r.Images {
		if r.Images[i].Duration == 0 {
			r.Images[i].Duration = DefaultImageDuration
		}
	}
	if r.OutputPath == "" {
		r.OutputPath = DefaultOutputPath
	}
	if r.Width == 0 {
		r.Width = DefaultWidth
	}
	if r.Height == 0 {
		r.Height = DefaultHeight
	}
	if r.FPS == 0 {
		r.FPS = DefaultFPS
	}
}

// Validate reports the first problem with the request. Call after Normalize.
func (r *VideoRequest) Validate() error {
	if len(r.Images) == 0 {
		return errors.New("images is required and must not be empty")
	}
	for i, img := range r.Images {
		if img.URL == "" {
			return fmt.Errorf("images[%d].url is required", i)
		}
		if img.Duration <= 0 {
			return fmt.Errorf("images[%d].duration must be positive", i)
		}
	}
	if r.AudioURL == "" {
		return errors.New("audioUrl is required")
	}
	if r.Width <= 0 {
		return errors.New("width must be positive")
	}
	if r.Height <= 0 {
		return errors.New("height must be positive")
	}
	if r.FPS <= 0 {
		return errors.New("fps must be positive")
	}
	return nil
}

// DTOs for API responses

// VideoResponse is the success payload for POST /create-video.
type VideoResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Size    int64  `json:"size"`
	Frames  int    `json:"frames"`
	FPS     int    `json:"fps"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// ErrorResponse is the payload for every non-2xx status.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
