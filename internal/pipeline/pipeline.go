package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/hlynes/storyreel/internal/models"
	"github.com/hlynes/storyreel/internal/services"
	"github.com/hlynes/storyreel/internal/storage"
	"github.com/hlynes/storyreel/internal/workspace"
)

// Result describes a finished render.
type Result struct {
	URL    string
	Size   int64
	Frames int
	FPS    int
	Width  int
	Height int
}

type Pipeline struct {
	fetcher *services.Fetcher
	ffmpeg  *services.FFmpegService
	storage *storage.Storage
	workDir string
	log     zerolog.Logger
}

func New(fetcher *services.Fetcher, ffmpeg *services.FFmpegService, stor *storage.Storage, workDir string, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher: fetcher,
		ffmpeg:  ffmpeg,
		storage: stor,
		workDir: workDir,
		log:     logger,
	}
}

// Run executes the full render for one request. Stages run strictly in
// order and the first failure aborts the run; publishing comes last so a
// failed render never leaves a partial object in storage. The workspace is
// removed on every exit path.
func (p *Pipeline) Run(ctx context.Context, req *models.VideoRequest) (*Result, error) {
	started := time.Now()

	ws, err := workspace.Create(p.workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			p.log.Warn().Err(err).Str("workspace", ws.ID).Msg("workspace cleanup failed")
		}
	}()

	log := p.log.With().Str("workspace", ws.ID).Logger()
	log.Info().
		Int("images", len(req.Images)).
		Str("output", req.OutputPath).
		Int("width", req.Width).
		Int("height", req.Height).
		Int("fps", req.FPS).
		Msg("render started")

	// Step 1: Fetch every asset before any encoding
	assets, audioPath, err := p.fetcher.FetchAll(ctx, req.Images, req.AudioURL, ws)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assets: %w", err)
	}
	log.Info().Int("images", len(assets)).Msg("assets fetched")

	// Step 2: Lay out the timeline
	timeline, err := services.BuildTimeline(assets)
	if err != nil {
		return nil, fmt.Errorf("failed to build timeline: %w", err)
	}
	listPath := ws.Path("timeline.txt")
	if err := timeline.WriteFile(listPath); err != nil {
		return nil, err
	}

	// Step 3: Render the stills into a silent video stream
	videoPath := ws.Path("video.mp4")
	if err := p.ffmpeg.RenderSlideshow(ctx, listPath, videoPath, req.Width, req.Height, req.FPS); err != nil {
		return nil, err
	}

	// Step 4: Mux the audio track onto the rendered video
	finalPath := ws.Path("final.mp4")
	if err := p.ffmpeg.MuxAudio(ctx, videoPath, audioPath, finalPath); err != nil {
		return nil, err
	}

	if duration, err := p.ffmpeg.ProbeDuration(ctx, finalPath); err != nil {
		log.Warn().Err(err).Msg("could not probe final duration")
	} else {
		log.Info().Float64("seconds", duration).Msg("final video rendered")
	}

	// Step 5: Publish the artifact
	upload, err := p.storage.PublishFile(ctx, req.OutputPath, finalPath, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("failed to publish video: %w", err)
	}

	log.Info().
		Str("url", upload.PublicURL).
		Int64("bytes", upload.ByteSize).
		Dur("elapsed", time.Since(started)).
		Msg("render completed")

	return &Result{
		URL:    upload.PublicURL,
		Size:   upload.ByteSize,
		Frames: len(req.Images),
		FPS:    req.FPS,
		Width:  req.Width,
		Height: req.Height,
	}, nil
}
