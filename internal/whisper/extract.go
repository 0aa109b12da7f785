package whisper

import (
	"errors"
	"os"
	"strings"

	"go.uber.org/zap"
)

// BannerText marks engine console lines that never carry transcript text.
const BannerText = "whisper.cpp"

type TranscriptSource string

const (
	SourceArtifact TranscriptSource = "artifact"
	SourceConsole  TranscriptSource = "console"
	SourceSilence  TranscriptSource = "silence"
	SourceNone     TranscriptSource = "none"
)

type Transcript struct {
	Text   string
	Source TranscriptSource
}

// ConsoleParser recovers transcript text from engine console output.
type ConsoleParser interface {
	Parse(stdout string) (string, bool)
}

// BracketParser takes the first line holding both '[' and ']' that is not
// an engine banner and returns whatever follows its last ']'.
type BracketParser struct {
	Banner string
}

func (p BracketParser) Parse(stdout string) (string, bool) {
	banner := p.Banner
	if banner == "" {
		banner = BannerText
	}

	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, "[") || !strings.Contains(line, "]") {
			continue
		}
		if strings.Contains(line, banner) {
			continue
		}
		return strings.TrimSpace(line[strings.LastIndex(line, "]")+1:]), true
	}
	return "", false
}

// Extractor turns an engine run into transcript text. It never fails: an
// engine that exited 0 without usable output means no speech.
type Extractor struct {
	Parser ConsoleParser
	Logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{Parser: BracketParser{}, Logger: logger}
}

func (x *Extractor) Extract(audioPath string, out Output) Transcript {
	logger := x.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	artifact := ArtifactPath(audioPath)
	content, err := os.ReadFile(artifact)
	switch {
	case err == nil:
		if rmErr := os.Remove(artifact); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove transcript artifact", zap.String("path", artifact), zap.Error(rmErr))
		}
		return Transcript{Text: strings.TrimSpace(string(content)), Source: SourceArtifact}
	case !errors.Is(err, os.ErrNotExist):
		logger.Warn("transcript artifact unreadable; parsing console output", zap.String("path", artifact), zap.Error(err))
	}

	parser := x.Parser
	if parser == nil {
		parser = BracketParser{}
	}
	if text, ok := parser.Parse(out.Stdout); ok {
		return Transcript{Text: text, Source: SourceConsole}
	}

	logger.Warn("engine exited cleanly without a transcript; treating as no speech",
		zap.String("audio", audioPath),
		zap.Int("stdout_bytes", len(out.Stdout)),
		zap.String("stderr_tail", tail(out.Stderr, 512)),
	)
	return Transcript{Source: SourceNone}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
