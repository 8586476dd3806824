package audio

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/scripture-service/internal/core"
)

const (
	stagingDirPerm  = 0o750
	stagingFilePerm = 0o600
	chunkNameFormat = "chunk-%04d%s"
)

// Staging is a per-request scratch directory. Every file written through it lives under Dir
// and is removed by Release.
type Staging struct {
	dir string
	log *logger.Logger
}

// NewStaging creates a uniquely named directory under root.
func NewStaging(root string, log *logger.Logger) (*Staging, error) {
	if root == "" {
		root = os.TempDir()
	}

	dir := filepath.Join(root, "narration-"+uuid.NewString())

	err := os.MkdirAll(dir, stagingDirPerm)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging directory %s: %w", dir, err)
	}

	return &Staging{dir: dir, log: log}, nil
}

// Dir returns the staging directory.
func (s *Staging) Dir() string {
	return s.dir
}

// Path returns the path of name inside the staging directory.
func (s *Staging) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// WriteChunk decodes a Base64 audio payload into the file for chunk index.
func (s *Staging) WriteChunk(index int, encoded string, format Format) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: chunk %d is not valid base64: %w", core.ErrSynthesis, index, err)
	}

	if len(data) == 0 {
		return "", fmt.Errorf("%w: chunk %d decoded to no audio", core.ErrSynthesis, index)
	}

	path := s.Path(fmt.Sprintf(chunkNameFormat, index, format.Extension()))

	err = os.WriteFile(path, data, stagingFilePerm)
	if err != nil {
		return "", fmt.Errorf("failed to stage chunk %d: %w", index, err)
	}

	return path, nil
}

// Release removes the staging directory and everything in it.
func (s *Staging) Release() {
	err := os.RemoveAll(s.dir)
	if err != nil {
		s.log.Warn("Failed to release staging directory %s: %v", s.dir, err)
	}
}
