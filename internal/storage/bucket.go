package storage

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/foresight/internal/errors"
)

// Bucket is a flat key/value area rooted at a directory of an afero.Fs.
// Keys use forward slashes and may contain one or more path segments.
type Bucket struct {
	fs   afero.Fs
	name string
	dir  string
}

// Object describes one stored key.
type Object struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// NewBucket returns a bucket named name stored under dir.
func NewBucket(fsys afero.Fs, name, dir string) *Bucket {
	return &Bucket{fs: fsys, name: name, dir: dir}
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Dir returns the directory backing the bucket.
func (b *Bucket) Dir() string { return b.dir }

// Path returns the file path for key. It fails for keys that escape the
// bucket.
func (b *Bucket) Path(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", errors.NewValidationError("invalid object key").WithField("key").WithValue(key)
	}
	return filepath.Join(b.dir, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Put writes data under key, replacing any existing object. The write goes
// through a temporary file so readers never see a partial object.
func (b *Bucket) Put(key string, data []byte) error {
	p, err := b.Path(key)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "bucket %s: create directory", b.name)
	}

	tmp := p + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "bucket %s: write %s", b.name, key)
	}
	if err := b.fs.Rename(tmp, p); err != nil {
		_ = b.fs.Remove(tmp)
		return errors.Wrapf(err, "bucket %s: commit %s", b.name, key)
	}
	return nil
}

// Get reads the object stored under key. A missing key yields an error
// matching errors.ErrNotFound.
func (b *Bucket) Get(key string) ([]byte, error) {
	p, err := b.Path(key)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, p)
	if errors.Is(err, fs.ErrNotExist) || os.IsNotExist(err) {
		return nil, errors.Wrapf(errors.ErrNotFound, "bucket %s: %s", b.name, key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "bucket %s: read %s", b.name, key)
	}
	return data, nil
}

// Exists reports whether key is stored.
func (b *Bucket) Exists(key string) (bool, error) {
	p, err := b.Path(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(b.fs, p)
}

// List returns the objects whose keys start with prefix, sorted by key.
// A bucket that was never written to is empty.
func (b *Bucket) List(prefix string) ([]Object, error) {
	exists, err := afero.DirExists(b.fs, b.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "bucket %s: stat", b.name)
	}
	if !exists {
		return nil, nil
	}

	var objects []Object
	err = afero.Walk(b.fs, b.dir, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, ".tmp") {
			return nil
		}
		rel, err := filepath.Rel(b.dir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			objects = append(objects, Object{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bucket %s: list", b.name)
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Latest returns the most recently modified object under prefix. Ties are
// broken by key. ok is false when nothing matches.
func (b *Bucket) Latest(prefix string) (obj Object, ok bool, err error) {
	objects, err := b.List(prefix)
	if err != nil || len(objects) == 0 {
		return Object{}, false, err
	}
	latest := objects[0]
	for _, o := range objects[1:] {
		if o.ModTime.After(latest.ModTime) || (o.ModTime.Equal(latest.ModTime) && o.Key > latest.Key) {
			latest = o
		}
	}
	return latest, true, nil
}
