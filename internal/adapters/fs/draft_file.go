// Package fs provides file-based persistence adapters.
package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/reviewlab/syncward/internal/domain"
)

const draftFileName = "grading-drafts.json"

// DraftFileRepository implements ports.DraftRepository using a JSON file.
// Writes go to a temp file first and are renamed into place, so a crash
// mid-write never corrupts the previous snapshot.
type DraftFileRepository struct {
	dir string
}

// NewDraftFileRepository creates a repository rooted at dir.
func NewDraftFileRepository(dir string) *DraftFileRepository {
	return &DraftFileRepository{dir: dir}
}

// Load retrieves the persisted drafts.
// Returns an empty map and nil error if no draft file exists.
func (r *DraftFileRepository) Load(ctx context.Context) (map[string]domain.GradeDraft, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]domain.GradeDraft{}, nil
		}
		return nil, err
	}

	drafts := map[string]domain.GradeDraft{}
	if err := json.Unmarshal(data, &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// Save persists the full draft map atomically.
func (r *DraftFileRepository) Save(ctx context.Context, drafts map[string]domain.GradeDraft) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"

	data, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the draft file.
func (r *DraftFileRepository) Path() string {
	return filepath.Join(r.dir, draftFileName)
}
