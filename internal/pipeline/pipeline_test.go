package pipeline

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hlynes/storyreel/internal/models"
	"github.com/hlynes/storyreel/internal/services"
	"github.com/hlynes/storyreel/internal/storage"
)

// fakeRunner stands in for ffmpeg/ffprobe. It writes the expected output
// file so later stages find it, and captures the timeline list it was given.
type fakeRunner struct {
	mu       sync.Mutex
	names    []string
	calls    [][]string
	timeline string
	failOn   string // fail any ffmpeg call whose args contain this substring
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, output io.Writer) error {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.calls = append(r.calls, args)
	r.mu.Unlock()

	if name == "ffprobe" {
		io.WriteString(output, "7.5\n")
		return nil
	}

	joined := strings.Join(args, " ")

	if strings.Contains(joined, "-f concat") {
		for i, a := range args {
			if a == "-i" && i+1 < len(args) {
				if data, err := os.ReadFile(args[i+1]); err == nil {
					r.mu.Lock()
					r.timeline = string(data)
					r.mu.Unlock()
				}
				break
			}
		}
	}

	if r.failOn != "" && strings.Contains(joined, r.failOn) {
		io.WriteString(output, "Invalid data found when processing input")
		return errors.New("exit status 1")
	}

	out := args[len(args)-1]
	return os.WriteFile(out, []byte("encoded-"+filepath.Base(out)), 0644)
}

func (r *fakeRunner) invocations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

// storageStub records uploads and answers with a fixed status.
type storageStub struct {
	srv    *httptest.Server
	mu     sync.Mutex
	hits   int
	status int
	body   string
}

func newStorageStub(status int, body string) *storageStub {
	s := &storageStub{status: status, body: body}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
		w.WriteHeader(s.status)
		io.WriteString(w, s.body)
	}))
	return s
}

func (s *storageStub) uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func newAssetServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("asset:" + r.URL.Path))
	}))
}

func newTestPipeline(t *testing.T, runner *fakeRunner, storageURL string) (*Pipeline, string) {
	t.Helper()
	workDir := filepath.Join(t.TempDir(), "work")
	fetcher := services.NewFetcher(5*time.Second, 4, zerolog.Nop())
	ffmpeg := services.NewFFmpegService("ffmpeg", "ffprobe", zerolog.Nop(), services.WithRunner(runner))
	stor := storage.New(storageURL, "service-key", "videos", 5*time.Second, zerolog.Nop())
	return New(fetcher, ffmpeg, stor, workDir, zerolog.Nop()), workDir
}

func testRequest(assetURL string) *models.VideoRequest {
	req := &models.VideoRequest{
		Images: []models.ImageInput{
			{URL: assetURL + "/one.jpg", Duration: 2},
			{URL: assetURL + "/two.jpg", Duration: 3},
		},
		AudioURL: assetURL + "/voice.mp3",
	}
	req.Normalize()
	return req
}

func assertWorkDirEmpty(t *testing.T, workDir string) {
	t.Helper()
	entries, err := os.ReadDir(workDir)
	if err != nil {
		t.Fatalf("failed to read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty work dir, found %d entries", len(entries))
	}
}

func TestRunHappyPath(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusOK, "")
	defer store.srv.Close()

	runner := &fakeRunner{}
	p, workDir := newTestPipeline(t, runner, store.srv.URL)

	result, err := p.Run(context.Background(), testRequest(assets.URL))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wantURL := store.srv.URL + "/storage/v1/object/public/videos/stories/output.mp4"
	if result.URL != wantURL {
		t.Errorf("expected URL %s, got %s", wantURL, result.URL)
	}
	if result.Size != int64(len("encoded-final.mp4")) {
		t.Errorf("expected published byte size, got %d", result.Size)
	}
	if result.Frames != 2 {
		t.Errorf("expected 2 frames, got %d", result.Frames)
	}
	if result.FPS != 25 || result.Width != 1920 || result.Height != 1080 {
		t.Errorf("expected defaults echoed back, got %+v", result)
	}

	invocations := runner.invocations()
	want := []string{"ffmpeg", "ffmpeg", "ffprobe"}
	if len(invocations) != len(want) {
		t.Fatalf("expected invocations %v, got %v", want, invocations)
	}
	for i := range want {
		if invocations[i] != want[i] {
			t.Errorf("invocation %d: expected %s, got %s", i, want[i], invocations[i])
		}
	}

	if store.uploads() != 1 {
		t.Errorf("expected exactly one upload, got %d", store.uploads())
	}

	assertWorkDirEmpty(t, workDir)
}

func TestRunTimelineContent(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusOK, "")
	defer store.srv.Close()

	runner := &fakeRunner{}
	p, _ := newTestPipeline(t, runner, store.srv.URL)

	if _, err := p.Run(context.Background(), testRequest(assets.URL)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if strings.Count(runner.timeline, "file '") != 3 {
		t.Errorf("expected 3 file entries, got:\n%s", runner.timeline)
	}
	if !strings.Contains(runner.timeline, "duration 2\n") || !strings.Contains(runner.timeline, "duration 3\n") {
		t.Errorf("durations missing from timeline:\n%s", runner.timeline)
	}

	lines := strings.Split(strings.TrimSpace(runner.timeline), "\n")
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, "file '") || !strings.Contains(last, "image_001") {
		t.Errorf("expected trailing repeat of the last image, got %q", last)
	}
}

func TestRunEncodeFailureSkipsUpload(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusOK, "")
	defer store.srv.Close()

	runner := &fakeRunner{failOn: "-f concat"}
	p, workDir := newTestPipeline(t, runner, store.srv.URL)

	_, err := p.Run(context.Background(), testRequest(assets.URL))
	if err == nil {
		t.Fatal("expected error")
	}

	var encErr *services.EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodeError, got %T: %v", err, err)
	}
	if !strings.Contains(encErr.Output, "Invalid data found") {
		t.Errorf("expected captured encoder output, got %q", encErr.Output)
	}

	if store.uploads() != 0 {
		t.Errorf("expected no upload after encode failure, got %d", store.uploads())
	}

	assertWorkDirEmpty(t, workDir)
}

func TestRunFetchFailureSkipsEncoding(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusOK, "")
	defer store.srv.Close()

	runner := &fakeRunner{}
	p, workDir := newTestPipeline(t, runner, store.srv.URL)

	req := testRequest(assets.URL)
	req.Images = append(req.Images, models.ImageInput{URL: assets.URL + "/missing.jpg", Duration: 3})

	_, err := p.Run(context.Background(), req)
	if err == nil {
		t.Fatal("expected error")
	}

	var dlErr *services.DownloadError
	if !errors.As(err, &dlErr) {
		t.Fatalf("expected DownloadError, got %T: %v", err, err)
	}

	if n := len(runner.invocations()); n != 0 {
		t.Errorf("expected no encoder invocations, got %d", n)
	}
	if store.uploads() != 0 {
		t.Errorf("expected no upload, got %d", store.uploads())
	}

	assertWorkDirEmpty(t, workDir)
}

func TestRunUploadFailure(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusServiceUnavailable, `{"message":"bucket unavailable"}`)
	defer store.srv.Close()

	runner := &fakeRunner{}
	p, workDir := newTestPipeline(t, runner, store.srv.URL)

	_, err := p.Run(context.Background(), testRequest(assets.URL))
	if err == nil {
		t.Fatal("expected error")
	}

	var upErr *storage.UploadError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UploadError, got %T: %v", err, err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", upErr.StatusCode)
	}
	if !strings.Contains(upErr.Body, "bucket unavailable") {
		t.Errorf("expected response body captured, got %q", upErr.Body)
	}

	assertWorkDirEmpty(t, workDir)
}

func TestRunMissingStorageConfig(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()

	runner := &fakeRunner{}
	workDir := filepath.Join(t.TempDir(), "work")
	fetcher := services.NewFetcher(5*time.Second, 4, zerolog.Nop())
	ffmpeg := services.NewFFmpegService("ffmpeg", "ffprobe", zerolog.Nop(), services.WithRunner(runner))
	stor := storage.New("", "", "videos", 5*time.Second, zerolog.Nop())
	p := New(fetcher, ffmpeg, stor, workDir, zerolog.Nop())

	_, err := p.Run(context.Background(), testRequest(assets.URL))
	if err == nil {
		t.Fatal("expected error")
	}

	var cfgErr *storage.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T: %v", err, err)
	}

	// Encoding ran to completion; only the publish step failed.
	invocations := runner.invocations()
	if len(invocations) < 2 {
		t.Errorf("expected both encode passes to run, got %v", invocations)
	}

	assertWorkDirEmpty(t, workDir)
}

func TestRunCancelledContext(t *testing.T) {
	assets := newAssetServer(t)
	defer assets.Close()
	store := newStorageStub(http.StatusOK, "")
	defer store.srv.Close()

	runner := &fakeRunner{}
	p, workDir := newTestPipeline(t, runner, store.srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Run(ctx, testRequest(assets.URL)); err == nil {
		t.Fatal("expected error for cancelled context")
	}

	assertWorkDirEmpty(t, workDir)
}
