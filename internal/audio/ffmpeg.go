package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/book-expert/logger"

	"github.com/book-expert/scripture-service/internal/core"
)

const (
	defaultFFmpegBinary = "ffmpeg"
	concatListName      = "concat-%s.txt"
	concatListPerm      = 0o600
)

// FFmpegConcatenator implements core.Concatenator with ffmpeg's concat demuxer.
type FFmpegConcatenator struct {
	binary string
	log    *logger.Logger
}

// NewFFmpegConcatenator creates a concatenator running binary, or "ffmpeg" from PATH.
func NewFFmpegConcatenator(binary string, log *logger.Logger) *FFmpegConcatenator {
	if binary == "" {
		binary = defaultFFmpegBinary
	}

	return &FFmpegConcatenator{binary: binary, log: log}
}

// Concatenate merges inputs in order into output without re-encoding and returns output.
// Inputs and the list file are removed whatever the outcome; a failed run leaves no output.
func (f *FFmpegConcatenator) Concatenate(ctx context.Context, inputs []string, output string) (string, error) {
	defer f.remove(inputs...)

	if len(inputs) == 0 {
		return "", fmt.Errorf("%w: no inputs", core.ErrConcatenation)
	}

	listPath := filepath.Join(filepath.Dir(output), fmt.Sprintf(concatListName, filepath.Base(output)))
	defer f.remove(listPath)

	err := os.WriteFile(listPath, []byte(concatList(inputs)), concatListPerm)
	if err != nil {
		return "", fmt.Errorf("%w: failed to write concat list: %w", core.ErrConcatenation, err)
	}

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		output,
	}

	// #nosec G204 -- the binary comes from configuration and every argument is a staged path
	cmd := exec.CommandContext(ctx, f.binary, args...)

	combined, err := cmd.CombinedOutput()
	if err != nil {
		f.remove(output)

		return "", fmt.Errorf("%w: %s failed: %w - output: %s",
			core.ErrConcatenation, f.binary, err, strings.TrimSpace(string(combined)))
	}

	info, err := os.Stat(output)
	if err != nil || info.Size() == 0 {
		f.remove(output)

		return "", fmt.Errorf("%w: %s produced no output", core.ErrConcatenation, f.binary)
	}

	f.log.Info("Concatenated %d chunks into %s.", len(inputs), output)

	return output, nil
}

// concatList renders the concat demuxer input list, quoting each path.
func concatList(inputs []string) string {
	var builder strings.Builder

	for _, input := range inputs {
		builder.WriteString("file '")
		builder.WriteString(strings.ReplaceAll(input, "'", `'\''`))
		builder.WriteString("'\n")
	}

	return builder.String()
}

func (f *FFmpegConcatenator) remove(paths ...string) {
	for _, path := range paths {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			f.log.Warn("Failed to remove %s: %v", path, err)
		}
	}
}
