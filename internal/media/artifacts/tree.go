// Package artifacts lays out uploads and transcoded output on the local filesystem.
//
//	<root>/temp/<uuid>.dat        raw upload, input of the transcoder
//	<root>/temp/<uuid>.lock       held by the worker while it writes output
//	<root>/<owner>/<uuid>/...     playlist and segments
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const tempDirName = "temp"

var ErrInvalidOwner = errors.New("owner identity cannot be used as a directory name")

type Tree struct {
	root string
}

// NewTree makes sure the root and its temp directory exist.
func NewTree(root string) (*Tree, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("artifact root is empty")
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &Tree{root: root}, nil
}

func (t *Tree) Root() string { return t.root }

func (t *Tree) UploadPath(id uuid.UUID) string {
	return filepath.Join(t.root, tempDirName, id.String()+".dat")
}

func (t *Tree) LockPath(id uuid.UUID) string {
	return filepath.Join(t.root, tempDirName, id.String()+".lock")
}

func (t *Tree) MediaDir(owner string, id uuid.UUID) (string, error) {
	if err := validateOwner(owner); err != nil {
		return "", err
	}
	return filepath.Join(t.root, owner, id.String()), nil
}

// MediaFS exposes one media directory; fs.FS paths cannot climb out of it.
func (t *Tree) MediaFS(owner string, id uuid.UUID) (fs.FS, error) {
	dir, err := t.MediaDir(owner, id)
	if err != nil {
		return nil, err
	}
	return os.DirFS(dir), nil
}

func (t *Tree) RemoveMedia(owner string, id uuid.UUID) error {
	dir, err := t.MediaDir(owner, id)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}

// RemoveUpload deletes the raw upload and its lock file. Missing files are not an error.
func (t *Tree) RemoveUpload(id uuid.UUID) error {
	var errs []error
	for _, p := range []string{t.UploadPath(id), t.LockPath(id)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func validateOwner(owner string) error {
	switch {
	case owner == "", owner == ".", owner == "..", owner == tempDirName:
		return fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	case strings.ContainsAny(owner, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}
	return nil
}
