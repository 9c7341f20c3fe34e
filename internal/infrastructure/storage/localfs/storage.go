package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Archive keeps uploaded audio on local disk under <base>/<yyyy>/<mm>/<dd>/<key>.
type Archive struct {
	basePath string
	now      func() time.Time
}

func New(basePath string) (*Archive, error) {
	if basePath == "" {
		basePath = "./data/audio"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Archive{
		basePath: basePath,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Save writes to a temp file and renames it into place, so readers never see partial audio.
func (a *Archive) Save(ctx context.Context, key string, data io.Reader, _ int64, _ string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", fmt.Errorf("invalid archive key %q", key)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir := filepath.Join(a.basePath, a.now().Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+key+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}

	path := filepath.Join(dir, key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename file: %w", err)
	}
	return "file://" + filepath.ToSlash(path), nil
}
