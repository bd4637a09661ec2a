package services

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LocalAsset is a fetched file sitting in the request workspace.
type LocalAsset struct {
	FilePath string
	Duration float64 // seconds on screen
}

// TimelineEntry is one concat directive: show FilePath, then (unless Hold)
// advance after Duration seconds.
type TimelineEntry struct {
	FilePath string
	Duration float64
	Hold     bool
}

// Timeline is the encoder-readable description of when each still appears.
type Timeline struct {
	Entries []TimelineEntry
}

// BuildTimeline lays out the stills in input order. The final image is
// referenced twice: the concat demuxer takes a frame's display time from the
// distance to the next entry, so without the trailing repeat the last still
// would flash by instead of holding for its full duration.
func BuildTimeline(assets []LocalAsset) (*Timeline, error) {
	if len(assets) == 0 {
		return nil, fmt.Errorf("no images to lay out")
	}

	entries := make([]TimelineEntry, 0, len(assets)+1)
	for _, a := range assets {
		entries = append(entries, TimelineEntry{FilePath: a.FilePath, Duration: a.Duration})
	}
	entries = append(entries, TimelineEntry{FilePath: assets[len(assets)-1].FilePath, Hold: true})

	return &Timeline{Entries: entries}, nil
}

// ConcatList renders the timeline in ffmpeg concat demuxer format.
func (t *Timeline) ConcatList() string {
	var b strings.Builder
	for _, e := range t.Entries {
		fmt.Fprintf(&b, "file '%s'\n", e.FilePath)
		if !e.Hold {
			fmt.Fprintf(&b, "duration %s\n", strconv.FormatFloat(e.Duration, 'f', -1, 64))
		}
	}
	return b.String()
}

// WriteFile writes the rendered concat list to path.
func (t *Timeline) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(t.ConcatList()), 0644); err != nil {
		return fmt.Errorf("failed to write timeline: %w", err)
	}
	return nil
}
