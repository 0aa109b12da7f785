package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServeCommandPassesOptions(t *testing.T) {
	t.Parallel()

	var got serveOptions
	app := &appState{
		serveFn: func(_ context.Context, opts serveOptions) error {
			got = opts
			return nil
		},
	}

	cmd := newServeCmd(app)
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"--addr", "127.0.0.1:9000", "--max-concurrent", "2", "--max-upload-bytes", "1024"})

	require.NoError(t, cmd.Execute())
	require.Equal(t, serveOptions{addr: "127.0.0.1:9000", maxConcurrent: 2, maxUploadBytes: 1024}, got)
}
