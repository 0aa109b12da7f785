package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/metrics"
	"github.com/fmueller/voxstt/internal/stt"
	"github.com/fmueller/voxstt/internal/wavtest"
	"github.com/fmueller/voxstt/internal/whisper"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	workDir string
	seen    []stt.Request
	body    []byte
	result  stt.Result
	err     error
}

func (f *fakePipeline) Transcribe(_ context.Context, req stt.Request) (stt.Result, error) {
	f.seen = append(f.seen, req)
	f.body, _ = os.ReadFile(req.SourcePath)
	_ = os.Remove(req.SourcePath)
	if f.err != nil {
		return stt.Result{}, f.err
	}
	res := f.result
	res.ID = req.ID
	res.Language = stt.SanitizeLanguage(req.Language)
	return res, nil
}

func (f *fakePipeline) WorkDir() string { return f.workDir }
func (f *fakePipeline) NewID() string   { return "fixed-id" }

type fakeStatus whisper.Status

func (f fakeStatus) Status() whisper.Status { return whisper.Status(f) }

func newTestServer(t *testing.T, p Transcriber, status whisper.Status, cfg Config) (*Server, *metrics.Metrics) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := New(p, fakeStatus(status), cfg, nil, m, reg)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s, m
}

func uploadRequest(t *testing.T, contentType string, payload []byte, language string) *http.Request {
	t.Helper()

	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="clip.webm"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)

	if language != "" {
		require.NoError(t, mw.WriteField("language", language))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/stt", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()

	var out T
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestHealthReportsEngineAvailability(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakePipeline{}, whisper.Status{EngineInstalled: true}, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[healthResponse](t, rec.Body)
	require.Equal(t, "ok", got.Status)
	require.Equal(t, DefaultServiceName, got.Service)
	require.True(t, got.WhisperAvailable)
	require.Equal(t, "2026-01-02T03:04:05Z", got.Timestamp)
}

func TestSetupStatusReportsPreconditions(t *testing.T) {
	t.Parallel()

	status := whisper.Status{EngineInstalled: true, ModelPresent: false, EnginePath: "/opt/whisper-cli", ModelPath: "/models/ggml-base.en.bin"}
	s, _ := newTestServer(t, &fakePipeline{}, status, Config{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/setup/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[setupStatusResponse](t, rec.Body)
	require.True(t, got.WhisperInstalled)
	require.False(t, got.ModelDownloaded)
	require.Equal(t, "/opt/whisper-cli", got.WhisperPath)
	require.Equal(t, "/models/ggml-base.en.bin", got.ModelPath)
	require.Len(t, got.SetupInstructions, 4)
}

func TestTranscribeSuccess(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{workDir: t.TempDir(), result: stt.Result{Text: "good morning", Source: whisper.SourceConsole}}
	s, _ := newTestServer(t, p, whisper.Status{}, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "audio/webm", []byte("opus"), ""))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[transcribeResponse](t, rec.Body)
	require.True(t, got.Success)
	require.Equal(t, "good morning", got.Text)
	require.Equal(t, "detected", got.Language)
	require.Equal(t, "fixed-id", got.AudioID)

	require.Len(t, p.seen, 1)
	require.True(t, p.seen[0].DiscardSource)
	require.Equal(t, "fixed-id", p.seen[0].ID)
	require.Equal(t, filepath.Join(p.workDir, "upload-fixed-id.webm"), p.seen[0].SourcePath)
	require.Equal(t, []byte("opus"), p.body)
}

func TestTranscribeExplicitLanguageEchoed(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{workDir: t.TempDir()}
	s, _ := newTestServer(t, p, whisper.Status{}, Config{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "audio/wav", []byte("x"), "de"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "de", decode[transcribeResponse](t, rec.Body).Language)
	require.Equal(t, "de", p.seen[0].Language)
}

func TestTranscribeRejectsBadUploads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		req    func(t *testing.T) *http.Request
		status int
		errMsg string
	}{
		{
			name: "missing file",
			req: func(t *testing.T) *http.Request {
				body := new(bytes.Buffer)
				mw := multipart.NewWriter(body)
				require.NoError(t, mw.WriteField("language", "en"))
				require.NoError(t, mw.Close())
				req := httptest.NewRequest(http.MethodPost, "/stt", body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			status: http.StatusBadRequest,
			errMsg: "Audio file is required",
		},
		{
			name:   "not audio",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "text/plain", []byte("hi"), "") },
			status: http.StatusBadRequest,
			errMsg: "Only audio files are allowed",
		},
		{
			name:   "too large",
			req:    func(t *testing.T) *http.Request { return uploadRequest(t, "audio/wav", bytes.Repeat([]byte("a"), 100), "") },
			status: http.StatusRequestEntityTooLarge,
			errMsg: "Audio file too large",
		},
		{
			name: "body past read limit",
			req: func(t *testing.T) *http.Request {
				return uploadRequest(t, "audio/wav", bytes.Repeat([]byte("a"), multipartOverhead+1024), "")
			},
			status: http.StatusRequestEntityTooLarge,
			errMsg: "Audio file too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &fakePipeline{workDir: t.TempDir()}
			s, _ := newTestServer(t, p, whisper.Status{}, Config{MaxUploadBytes: 16})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, tt.req(t))

			require.Equal(t, tt.status, rec.Code)
			require.Equal(t, tt.errMsg, decode[errorResponse](t, rec.Body).Error)
			require.Empty(t, p.seen)
		})
	}
}

func TestTranscribeMapsPipelineErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{name: "engine missing", err: fmt.Errorf("%w: stat", whisper.ErrEngineNotInstalled), status: http.StatusServiceUnavailable, kind: stt.OutcomeEngineNotInstalled},
		{name: "model missing", err: fmt.Errorf("%w: stat", whisper.ErrModelNotFound), status: http.StatusServiceUnavailable, kind: stt.OutcomeModelNotFound},
		{name: "bad audio", err: &audio.NormalizationError{ExitCode: 1}, status: http.StatusUnprocessableEntity, kind: stt.OutcomeNormalizationFailed},
		{name: "engine crash", err: &whisper.ExecutionError{ExitCode: 1, Stderr: "boom"}, status: http.StatusInternalServerError, kind: stt.OutcomeEngineExecutionError},
		{name: "client gone", err: fmt.Errorf("whisper engine interrupted: %w", context.Canceled), status: statusClientClosedRequest, kind: stt.OutcomeCanceled},
		{name: "stage deadline", err: fmt.Errorf("audio normalization interrupted: %w", context.DeadlineExceeded), status: http.StatusGatewayTimeout, kind: stt.OutcomeTimeout},
		{name: "canceled start", err: fmt.Errorf("%w: %w", whisper.ErrEngineStartFailed, context.Canceled), status: statusClientClosedRequest, kind: stt.OutcomeCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := &fakePipeline{workDir: t.TempDir(), err: tt.err}
			s, _ := newTestServer(t, p, whisper.Status{}, Config{})

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, uploadRequest(t, "audio/ogg", []byte("x"), ""))

			require.Equal(t, tt.status, rec.Code)
			got := decode[errorResponse](t, rec.Body)
			require.Equal(t, "Speech-to-text failed", got.Error)
			require.Equal(t, tt.kind, got.Kind)
			require.Equal(t, tt.err.Error(), got.Message)
		})
	}
}

type stubNormalizer struct{}

func (stubNormalizer) Normalize(_ context.Context, _, outputPath string) error {
	return os.WriteFile(outputPath, wavtest.Tone(1600), 0o644)
}

type stubEngine struct{}

func (stubEngine) Transcribe(_ context.Context, audioPath, _ string) (whisper.Output, error) {
	return whisper.Output{}, os.WriteFile(whisper.ArtifactPath(audioPath), []byte("hello world"), 0o644)
}

func TestTranscribeWithPipelineLeavesNoFiles(t *testing.T) {
	t.Parallel()

	workDir := filepath.Join(t.TempDir(), "work")
	pipeline := stt.New(stubNormalizer{}, stubEngine{}, whisper.NewExtractor(nil), stt.Options{WorkDir: workDir}, nil, nil)
	s, _ := newTestServer(t, pipeline, whisper.Status{}, Config{MaxConcurrent: 1})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, uploadRequest(t, "audio/mpeg", []byte("mp3"), "auto"))

	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[transcribeResponse](t, rec.Body)
	require.Equal(t, "hello world", got.Text)
	require.NotEmpty(t, got.AudioID)

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	require.Empty(t, entries)

	metricsRec := httptest.NewRecorder()
	s.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsRec.Code)
	require.Contains(t, metricsRec.Body.String(), `voxstt_http_requests_total{code="200",route="/stt"} 1`)
}

func TestUploadExt(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".webm", uploadExt("clip.WEBM"))
	require.Equal(t, ".m4a", uploadExt("../../voice.m4a"))
	require.Equal(t, "", uploadExt("noext"))
	require.Equal(t, "", uploadExt("evil.w$v"))
	require.Equal(t, "", uploadExt("x.toolongext"))
}
