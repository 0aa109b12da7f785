package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fmueller/voxstt/internal/audio"
	"github.com/fmueller/voxstt/internal/stt"
	"github.com/fmueller/voxstt/internal/whisper"
	"go.uber.org/zap"
)

// statusClientClosedRequest is nginx's code for a client that went away
// before the response was ready.
const statusClientClosedRequest = 499

// multipartOverhead leaves room for boundaries and form fields on top of
// the audio payload.
const multipartOverhead = 64 << 10

type healthResponse struct {
	Status           string `json:"status"`
	Service          string `json:"service"`
	Timestamp        string `json:"timestamp"`
	WhisperAvailable bool   `json:"whisperAvailable"`
}

type setupStatusResponse struct {
	WhisperInstalled  bool              `json:"whisperInstalled"`
	ModelDownloaded   bool              `json:"modelDownloaded"`
	WhisperPath       string            `json:"whisperPath"`
	ModelPath         string            `json:"modelPath"`
	SetupInstructions map[string]string `json:"setupInstructions"`
}

type transcribeResponse struct {
	Success   bool   `json:"success"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	AudioID   string `json:"audioId"`
	Timestamp string `json:"timestamp"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Service:          s.cfg.ServiceName,
		Timestamp:        s.timestamp(),
		WhisperAvailable: s.status.Status().EngineInstalled,
	})
}

func (s *Server) setupStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.status.Status()
	writeJSON(w, http.StatusOK, setupStatusResponse{
		WhisperInstalled: status.EngineInstalled,
		ModelDownloaded:  status.ModelPresent,
		WhisperPath:      status.EnginePath,
		ModelPath:        status.ModelPath,
		SetupInstructions: map[string]string{
			"step1": "git clone https://github.com/ggerganov/whisper.cpp.git",
			"step2": "cmake -B build && cmake --build build --config Release",
			"step3": "sh ./models/download-ggml-model.sh base.en",
			"step4": fmt.Sprintf("place the model at %s and the binary at %s (or set %s)", status.ModelPath, status.EnginePath, whisper.EnginePathEnv),
		},
	})
}

func (s *Server) transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("audio")
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Audio file too large", Message: fmt.Sprintf("limit is %d bytes", s.cfg.MaxUploadBytes)})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Audio file is required"})
		return
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "Audio file too large", Message: fmt.Sprintf("limit is %d bytes", s.cfg.MaxUploadBytes)})
		return
	}
	if !strings.HasPrefix(strings.ToLower(header.Header.Get("Content-Type")), "audio/") {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Only audio files are allowed"})
		return
	}

	id := s.pipeline.NewID()
	logger := s.logger.With(zap.String("request_id", id))
	logger.Info("processing upload", zap.String("filename", header.Filename), zap.Int64("bytes", header.Size))

	uploadPath, err := s.saveUpload(id, header.Filename, file)
	if err != nil {
		logger.Warn("failed to store upload", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Speech-to-text failed", Message: "could not store upload"})
		return
	}

	if err := s.slots.Acquire(r.Context(), 1); err != nil {
		removeQuietly(logger, uploadPath)
		if s.metrics != nil {
			s.metrics.Rejected.Inc()
		}
		writeJSON(w, statusFor(err), errorResponse{Error: "Speech-to-text failed", Message: "request ended while waiting for an engine slot", Kind: stt.Outcome(err)})
		return
	}
	if s.metrics != nil {
		s.metrics.InFlight.Inc()
	}
	res, err := s.pipeline.Transcribe(r.Context(), stt.Request{
		ID:            id,
		SourcePath:    uploadPath,
		Language:      r.FormValue("language"),
		DiscardSource: true,
	})
	if s.metrics != nil {
		s.metrics.InFlight.Dec()
	}
	s.slots.Release(1)

	if err != nil {
		writeJSON(w, statusFor(err), errorResponse{Error: "Speech-to-text failed", Message: err.Error(), Kind: stt.Outcome(err)})
		return
	}

	language := res.Language
	if language == whisper.AutoLanguage {
		language = "detected"
	}
	writeJSON(w, http.StatusOK, transcribeResponse{
		Success:   true,
		Text:      res.Text,
		Language:  language,
		AudioID:   res.ID,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) saveUpload(id, filename string, src multipart.File) (string, error) {
	if err := os.MkdirAll(s.pipeline.WorkDir(), 0o755); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}

	path := filepath.Join(s.pipeline.WorkDir(), "upload-"+id+uploadExt(filename))
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// uploadExt keeps a short alphanumeric extension so ffmpeg can use it as a
// container hint. Anything else is dropped.
func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case stt.IsSetupError(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrNormalizationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, stt.ErrInvalidID), errors.Is(err, stt.ErrSourceNotFound):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func removeQuietly(logger *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(err))
	}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
