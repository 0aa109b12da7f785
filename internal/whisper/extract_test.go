package whisper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractPrefersArtifactAndRemovesIt(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "req.wav")
	require.NoError(t, os.WriteFile(ArtifactPath(audioPath), []byte("\n  hello world \n"), 0o644))

	out := Output{Stdout: "[00:00:00.000 --> 00:00:02.000]  something else entirely\n"}
	got := NewExtractor(nil).Extract(audioPath, out)

	require.Equal(t, "hello world", got.Text)
	require.Equal(t, SourceArtifact, got.Source)
	require.NoFileExists(t, ArtifactPath(audioPath))
}

func TestExtractFallsBackToConsole(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "req.wav")
	out := Output{Stdout: "[00:00:00.000 --> 00:00:02.000]  good morning"}

	got := NewExtractor(nil).Extract(audioPath, out)
	require.Equal(t, Transcript{Text: "good morning", Source: SourceConsole}, got)
}

func TestExtractNoMatchReturnsEmpty(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "req.wav")
	out := Output{Stdout: "loading model\nprocessing audio\n"}

	got := NewExtractor(nil).Extract(audioPath, out)
	require.Equal(t, "", got.Text)
	require.Equal(t, SourceNone, got.Source)
}

func TestExtractUsesInjectedParser(t *testing.T) {
	t.Parallel()

	audioPath := filepath.Join(t.TempDir(), "req.wav")
	x := &Extractor{Parser: parserFunc(func(string) (string, bool) { return "custom", true })}

	require.Equal(t, "custom", x.Extract(audioPath, Output{}).Text)
}

func TestBracketParser(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stdout string
		want   string
		ok     bool
	}{
		{
			name:   "skips banner line",
			stdout: "whisper.cpp [build 1234] ready\n[00:00:00.000 --> 00:00:01.500]  hi there\n",
			want:   "hi there",
			ok:     true,
		},
		{
			name:   "takes text after last bracket",
			stdout: "[00:00:00.000 --> 00:00:01.000] [speaker 1]  guten tag",
			want:   "guten tag",
			ok:     true,
		},
		{
			name:   "first matching line wins",
			stdout: "[00:00:00.000 --> 00:00:01.000]  one\n[00:00:01.000 --> 00:00:02.000]  two\n",
			want:   "one",
			ok:     true,
		},
		{
			name:   "needs both brackets",
			stdout: "progress [ 50%\nfinished ]\n",
			ok:     false,
		},
		{
			name:   "empty output",
			stdout: "",
			ok:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := BracketParser{}.Parse(tt.stdout)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

type parserFunc func(string) (string, bool)

func (f parserFunc) Parse(stdout string) (string, bool) {
	return f(stdout)
}
