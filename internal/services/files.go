package services

import (
	"context"
	"fmt"

	"github.com/pocketbase/pocketbase/core"
)

type FileStore interface {
	Delete(ctx context.Context, key string) error
}

// PocketBaseFileStore removes files from the app's configured storage (local or S3).
type PocketBaseFileStore struct {
	app core.App
}

func NewPocketBaseFileStore(app core.App) *PocketBaseFileStore {
	return &PocketBaseFileStore{app: app}
}

func (f *PocketBaseFileStore) Delete(_ context.Context, key string) error {
	fsys, err := f.app.NewFilesystem()
	if err != nil {
		return fmt.Errorf("open filesystem: %w", err)
	}
	defer fsys.Close()

	exists, err := fsys.Exists(key)
	if err != nil {
		return fmt.Errorf("stat %s: %w", key, err)
	}
	if !exists {
		return nil
	}
	if err := fsys.Delete(key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
