package source

import (
	"context"
	"fmt"
	"os"

	"github.com/okian/livedraft/internal/domain/model"
)

// FileSource reads draft results from a local file on every poll, which
// makes it suitable for replaying a finished draft or a rehearsal.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Picks reads and decodes the file.
func (s *FileSource) Picks(ctx context.Context, _ model.DraftID) ([]model.PickReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer f.Close()
	picks, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, s.path, err)
	}
	return picks, nil
}
