// Package archive uploads the workspace of failed runs to object storage for later inspection.
package archive

import (
	"archive/tar"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"learnhub/internal/common/storage"
	appErr "learnhub/pkg/errors"
	"learnhub/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const (
	defaultPrefix      = "harness-runs"
	defaultTimeout     = 10 * time.Second
	defaultMaxFileSize = 1 << 20
	metaFileName       = "run.json"
	contentType        = "application/zstd"
)

// Config controls archiving.
type Config struct {
	Enabled     bool          `yaml:"enabled"`
	Bucket      string        `yaml:"bucket"`
	Prefix      string        `yaml:"prefix"`
	Timeout     time.Duration `yaml:"timeout"`
	Retention   time.Duration `yaml:"retention"`
	MaxFileSize int64         `yaml:"maxFileSize"`
}

// Meta is stored next to the workspace files.
type Meta struct {
	RunID        string    `json:"runId"`
	Language     string    `json:"language"`
	FunctionName string    `json:"functionName"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	Diagnostic   string    `json:"diagnostic,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Entry is one archived object.
type Entry struct {
	Key          string    `json:"key"`
	SizeBytes    int64     `json:"sizeBytes"`
	LastModified time.Time `json:"lastModified"`
}

// File is one member of an archive.
type File struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Archiver writes tar+zstd snapshots of run workspaces.
type Archiver struct {
	store storage.ObjectStorage
	cfg   Config
	now   func() time.Time
}

// NewArchiver returns nil when archiving is disabled or storage is missing.
func NewArchiver(store storage.ObjectStorage, cfg Config) *Archiver {
	if !cfg.Enabled || store == nil || cfg.Bucket == "" {
		return nil
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	return &Archiver{store: store, cfg: cfg, now: time.Now}
}

// Key returns the object key for a run.
func (a *Archiver) Key(runID string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%s.tar.zst", a.cfg.Prefix, at.UTC().Format("2006-01-02"), runID)
}

// Archive uploads dir with meta. The upload streams; nothing is staged on disk.
func (a *Archiver) Archive(ctx context.Context, dir string, meta Meta) (string, error) {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = a.now()
	}
	key := a.Key(meta.RunID, meta.CreatedAt)
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	reader, writer := io.Pipe()
	go func() {
		err := writeTarZst(writer, dir, meta, a.cfg.MaxFileSize)
		_ = writer.CloseWithError(err)
	}()
	defer reader.Close()

	if err := a.store.PutObject(ctx, a.cfg.Bucket, key, reader, -1, contentType); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload run archive failed")
	}
	logger.Info(ctx, "run archived", zap.String("run_id", meta.RunID), zap.String("key", key))
	return key, nil
}

// List returns archives for one day (YYYY-MM-DD), or all of them when day is empty.
func (a *Archiver) List(ctx context.Context, day string) ([]Entry, error) {
	prefix := a.cfg.Prefix + "/"
	if day != "" {
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return nil, appErr.ValidationError("date", "must be YYYY-MM-DD")
		}
		prefix += day + "/"
	}
	var out []Entry
	for obj := range a.store.ListObjects(ctx, a.cfg.Bucket, prefix) {
		if obj.Err != nil {
			return nil, appErr.Wrapf(obj.Err, appErr.StorageError, "list run archives failed")
		}
		out = append(out, Entry{Key: obj.Key, SizeBytes: obj.SizeBytes, LastModified: obj.LastModified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// Link returns a presigned download URL for an archive.
func (a *Archiver) Link(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := a.checkKey(key); err != nil {
		return "", err
	}
	if _, err := a.store.StatObject(ctx, a.cfg.Bucket, key); err != nil {
		return "", appErr.Wrapf(err, appErr.NotFound, "run archive not found")
	}
	url, err := a.store.PresignGetObject(ctx, a.cfg.Bucket, key, ttl)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "presign run archive failed")
	}
	return url, nil
}

// Inspect lists the members of an archive and returns its run metadata.
func (a *Archiver) Inspect(ctx context.Context, key string) (*Meta, []File, error) {
	if err := a.checkKey(key); err != nil {
		return nil, nil, err
	}
	body, err := a.store.GetObject(ctx, a.cfg.Bucket, key)
	if err != nil {
		return nil, nil, appErr.Wrapf(err, appErr.StorageError, "open run archive failed")
	}
	defer body.Close()

	zr, err := zstd.NewReader(body)
	if err != nil {
		return nil, nil, appErr.Wrapf(err, appErr.StorageError, "create zstd reader failed")
	}
	defer zr.Close()

	var meta *Meta
	var files []File
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, appErr.Wrapf(err, appErr.StorageError, "read tar entry failed")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if hdr.Name == metaFileName {
			var m Meta
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return nil, nil, appErr.Wrapf(err, appErr.StorageError, "decode run metadata failed")
			}
			meta = &m
			continue
		}
		files = append(files, File{Name: hdr.Name, SizeBytes: hdr.Size})
	}
	return meta, files, nil
}

// Prune removes archives older than the retention window.
func (a *Archiver) Prune(ctx context.Context) (int, error) {
	if a.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := a.now().Add(-a.cfg.Retention)
	var stale []string
	for obj := range a.store.ListObjects(ctx, a.cfg.Bucket, a.cfg.Prefix+"/") {
		if obj.Err != nil {
			return 0, appErr.Wrapf(obj.Err, appErr.StorageError, "list run archives failed")
		}
		if obj.LastModified.Before(cutoff) {
			stale = append(stale, obj.Key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := a.store.RemoveObjects(ctx, a.cfg.Bucket, stale); err != nil {
		return 0, appErr.Wrapf(err, appErr.StorageError, "remove run archives failed")
	}
	return len(stale), nil
}

func (a *Archiver) checkKey(key string) error {
	if key == "" || !strings.HasPrefix(key, a.cfg.Prefix+"/") || strings.Contains(key, "..") {
		return appErr.ValidationError("key", "is not a run archive key")
	}
	return nil
}

// writeTarZst writes meta followed by the regular files under dir.
func writeTarZst(w io.Writer, dir string, meta Meta, maxFileSize int64) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if err := writeEntry(tw, metaFileName, 0o644, meta.CreatedAt, strings.NewReader(string(metaBytes)), int64(len(metaBytes))); err != nil {
		return err
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return writeEntry(tw, filepath.ToSlash(rel), info.Mode().Perm(), info.ModTime(), f, info.Size())
	})
	if walkErr != nil {
		return fmt.Errorf("archive workspace: %w", walkErr)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar writer: %w", err)
	}
	return zw.Close()
}

func writeEntry(tw *tar.Writer, name string, mode fs.FileMode, modTime time.Time, r io.Reader, size int64) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     int64(mode),
		Size:     size,
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", name, err)
	}
	if _, err := io.CopyN(tw, r, size); err != nil {
		return fmt.Errorf("write tar entry %s: %w", name, err)
	}
	return nil
}
