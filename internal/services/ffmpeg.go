package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// maxCapturedOutput caps the combined stdout+stderr kept per invocation.
// A chatty encode can emit hundreds of megabytes of progress lines; anything
// past the cap is dropped, never buffered.
const maxCapturedOutput = 20 << 20 // 20 MiB

// Runner launches an external process and streams its combined output into w.
// The production runner shells out; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, name string, args []string, output io.Writer) error
}

type processRunner struct{}

func (processRunner) Run(ctx context.Context, name string, args []string, output io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = output
	cmd.Stderr = output
	return cmd.Run()
}

// cappedBuffer keeps at most max bytes of process output and discards the
// rest. Writes never fail so the process is not disturbed by the cap.
type cappedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if remaining := b.max - b.buf.Len(); remaining > 0 {
		if len(p) > remaining {
			p = p[:remaining]
		}
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

// EncodeError is a non-zero ffmpeg exit. Output holds the captured
// diagnostic text for the stage that failed.
type EncodeError struct {
	Stage  string
	Output string
	Err    error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg %s failed: %v", e.Stage, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// FFmpegService
// ---------------------------------------------------------------------------

type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	runner      Runner
	log         zerolog.Logger
}

type FFmpegOption func(*FFmpegService)

// WithRunner replaces the process launcher. Used by tests to avoid spawning
// real encoders.
func WithRunner(r Runner) FFmpegOption {
	return func(s *FFmpegService) {
		s.runner = r
	}
}

func NewFFmpegService(ffmpegPath, ffprobePath string, logger zerolog.Logger, opts ...FFmpegOption) *FFmpegService {
	s := &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		runner:      processRunner{},
		log:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RenderSlideshow turns a concat timeline of still images into a silent video
// stream. Each frame is scaled to fit inside width x height with its aspect
// ratio intact, then letterboxed onto a centered canvas. VFR timestamps let
// one frame per still carry its full display duration instead of duplicating
// frames for every tick of the clock.
func (s *FFmpegService) RenderSlideshow(ctx context.Context, listPath, outputPath string, width, height, fps int) error {
	vf := fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
		width, height, width, height,
	)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", vf,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		"-vsync", "vfr",
		"-y",
		outputPath,
	}

	s.log.Info().
		Str("list", listPath).
		Int("width", width).
		Int("height", height).
		Int("fps", fps).
		Msg("rendering slideshow video")

	return s.runFFmpeg(ctx, "render slideshow", args)
}

// MuxAudio combines the rendered video with the narration/music track. The
// video stream is copied untouched; audio is transcoded to AAC so the MP4
// container stays broadly playable. -shortest trims the result to the shorter
// of the two inputs.
func (s *FFmpegService) MuxAudio(ctx context.Context, videoPath, audioPath, outputPath string) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-y",
		outputPath,
	}

	s.log.Info().
		Str("video", videoPath).
		Str("audio", audioPath).
		Msg("muxing audio track")

	return s.runFFmpeg(ctx, "mux audio", args)
}

func (s *FFmpegService) runFFmpeg(ctx context.Context, stage string, args []string) error {
	output := &cappedBuffer{max: maxCapturedOutput}
	if err := s.runner.Run(ctx, s.ffmpegPath, args, output); err != nil {
		return &EncodeError{Stage: stage, Output: output.String(), Err: err}
	}
	return nil
}

// ProbeDuration returns the container duration of a media file in seconds.
func (s *FFmpegService) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	output := &cappedBuffer{max: maxCapturedOutput}
	if err := s.runner.Run(ctx, s.ffprobePath, args, output); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var durationSec float64
	if _, err := fmt.Sscanf(strings.TrimSpace(output.String()), "%f", &durationSec); err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}

	return durationSec, nil
}
