package audio_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/scripture-service/internal/audio"
	"github.com/book-expert/scripture-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg appends the files named in the concat list to the last argument.
const fakeFFmpeg = `#!/bin/sh
list=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) list="$2"; shift 2 ;;
    *) out="$1"; shift ;;
  esac
done
: > "$out"
sed -e "s/^file '//" -e "s/'\$//" "$list" | while IFS= read -r f; do cat "$f" >> "$out"; done
`

const failingFFmpeg = `#!/bin/sh
echo "invalid data found when processing input" >&2
exit 1
`

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	return log
}

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o700))

	return path
}

func stageChunks(t *testing.T, staging *audio.Staging, payloads ...string) []string {
	t.Helper()

	paths := make([]string, 0, len(payloads))

	for index, payload := range payloads {
		path, err := staging.WriteChunk(index, base64.StdEncoding.EncodeToString([]byte(payload)), audio.FormatMP3)
		require.NoError(t, err)

		paths = append(paths, path)
	}

	return paths
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, audio.FormatWAV, audio.ParseFormat(" WAV "))
	assert.Equal(t, audio.FormatMP3, audio.ParseFormat("flac"))
	assert.Equal(t, "audio/mpeg", audio.FormatMP3.ContentType())
	assert.Equal(t, ".ogg", audio.FormatOGG.Extension())
}

func TestStaging_WriteChunkAndRelease(t *testing.T) {
	t.Parallel()

	staging, err := audio.NewStaging(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)

	paths := stageChunks(t, staging, "first", "second")
	require.Len(t, paths, 2)
	assert.Equal(t, staging.Dir(), filepath.Dir(paths[0]))

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	staging.Release()
	assert.NoDirExists(t, staging.Dir())
}

func TestStaging_WriteChunkRejectsBadPayload(t *testing.T) {
	t.Parallel()

	staging, err := audio.NewStaging(t.TempDir(), newTestLogger(t))
	require.NoError(t, err)
	defer staging.Release()

	_, err = staging.WriteChunk(0, "%%% not base64", audio.FormatMP3)
	require.ErrorIs(t, err, core.ErrSynthesis)

	_, err = staging.WriteChunk(1, "", audio.FormatMP3)
	require.ErrorIs(t, err, core.ErrSynthesis)
}

// The exec tests are not parallel: a freshly written script can fail with ETXTBSY when
// another goroutine forks while the file is open.
func TestFFmpegConcatenator_Concatenate(t *testing.T) {
	log := newTestLogger(t)

	staging, err := audio.NewStaging(t.TempDir(), log)
	require.NoError(t, err)
	defer staging.Release()

	inputs := stageChunks(t, staging, "uno-", "dos-", "tres")
	output := staging.Path("chapter.mp3")

	concatenator := audio.NewFFmpegConcatenator(writeScript(t, fakeFFmpeg), log)

	result, err := concatenator.Concatenate(context.Background(), inputs, output)
	require.NoError(t, err)
	assert.Equal(t, output, result)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, "uno-dos-tres", string(data))

	for _, input := range inputs {
		assert.NoFileExists(t, input)
	}
}

func TestFFmpegConcatenator_FailureRemovesInputs(t *testing.T) {
	log := newTestLogger(t)

	staging, err := audio.NewStaging(t.TempDir(), log)
	require.NoError(t, err)
	defer staging.Release()

	inputs := stageChunks(t, staging, "uno", "dos")
	output := staging.Path("chapter.mp3")

	concatenator := audio.NewFFmpegConcatenator(writeScript(t, failingFFmpeg), log)

	_, err = concatenator.Concatenate(context.Background(), inputs, output)
	require.ErrorIs(t, err, core.ErrConcatenation)
	assert.Contains(t, err.Error(), "invalid data")
	assert.NoFileExists(t, output)

	for _, input := range inputs {
		assert.NoFileExists(t, input)
	}
}

func TestFFmpegConcatenator_MissingBinary(t *testing.T) {
	log := newTestLogger(t)

	staging, err := audio.NewStaging(t.TempDir(), log)
	require.NoError(t, err)
	defer staging.Release()

	inputs := stageChunks(t, staging, "uno")

	concatenator := audio.NewFFmpegConcatenator(filepath.Join(t.TempDir(), "no-such-ffmpeg"), log)

	_, err = concatenator.Concatenate(context.Background(), inputs, staging.Path("chapter.mp3"))
	require.ErrorIs(t, err, core.ErrConcatenation)
	assert.NoFileExists(t, inputs[0])

	entries, err := os.ReadDir(staging.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
