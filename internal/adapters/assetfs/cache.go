// Package assetfs stocke les miniatures sur disque, une entrée par world: <dir>/<key>.jpg.
package assetfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/domain"
	"github.com/Guilhem-Bonnet/vrc-world-sync/internal/ports"
)

const (
	DefaultExt      = ".jpg"
	DefaultMaxBytes = 20 << 20
)

var (
	ErrInvalidKey = errors.New("invalid asset key")
	ErrEmptyBody  = errors.New("empty asset body")
	ErrTooLarge   = errors.New("asset too large")
)

type Cache struct {
	dir      string
	fetcher  ports.Fetcher
	ext      string
	maxBytes int64
}

func New(dir string, fetcher ports.Fetcher) *Cache {
	return &Cache{dir: dir, fetcher: fetcher, ext: DefaultExt, maxBytes: DefaultMaxBytes}
}

func (c *Cache) Dir() string { return c.dir }

// Path renvoie l'emplacement d'une clé. Une clé est un simple nom de fichier.
func (c *Cache) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(c.dir, key+c.ext), nil
}

// Has: vrai uniquement pour une entrée existante et non vide.
func (c *Cache) Has(key string) bool {
	path, err := c.Path(key)
	if err != nil {
		return false
	}
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Open renvoie ports.ErrNotFound pour une entrée absente ou vide.
func (c *Cache) Open(key string) (*os.File, error) {
	if !c.Has(key) {
		return nil, ports.ErrNotFound
	}
	path, _ := c.Path(key)
	return os.Open(path)
}

func (c *Cache) Download(ctx context.Context, rawURL, key string) (domain.AssetOutcome, error) {
	path, err := c.Path(key)
	if err != nil {
		return domain.AssetFailed, err
	}

	fi, err := os.Stat(path)
	switch {
	case err == nil && fi.Size() > 0:
		return domain.AssetSkipped, nil
	case err == nil:
		// Entrée vide, reste d'une écriture interrompue.
		if rerr := os.Remove(path); rerr != nil {
			return domain.AssetFailed, rerr
		}
	case !errors.Is(err, fs.ErrNotExist):
		return domain.AssetFailed, err
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return domain.AssetFailed, err
	}

	rc, err := c.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return domain.AssetFailed, err
	}
	defer rc.Close()

	if err := c.writeAtomic(path, key, rc); err != nil {
		return domain.AssetFailed, err
	}
	return domain.AssetDownloaded, nil
}

func (c *Cache) writeAtomic(path, key string, r io.Reader) error {
	tmp, err := os.CreateTemp(c.dir, "."+key+"-*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	n, err := io.Copy(tmp, io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEmptyBody
	}
	if n > c.maxBytes {
		return ErrTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		committed = true
		return err
	}
	committed = true
	return nil
}
