package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

var ErrTooLarge = errors.New("file exceeds maximum size")

// FileManager owns the bytes under the storage root.
type FileManager struct {
	root           string
	maxUploadBytes int64
}

// DiskFile is one regular file found in a storage directory.
type DiskFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

func NewFileManager(root string, maxUploadBytes int64) (*FileManager, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", root, err)
	}
	return &FileManager{root: root, maxUploadBytes: maxUploadBytes}, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StoredName derives the on-disk name for an upload: the sanitized base name,
// an underscore, the 13-digit millisecond timestamp and the lower-cased
// extension.
func StoredName(original string, now time.Time) string {
	original = filepath.Base(strings.ReplaceAll(original, `\`, "/"))
	ext := strings.ToLower(extOf(original))
	base := strings.TrimSuffix(original, extOf(original))
	base = unsafeNameChars.ReplaceAllString(strings.TrimSpace(base), "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "file"
	}
	ext = unsafeNameChars.ReplaceAllString(ext, "")
	return fmt.Sprintf("%s_%013d%s", base, now.UnixMilli(), ext)
}

// Save streams r into dir/name, creating dir as needed. It never overwrites:
// an existing name fails with an error matching os.ErrExist. A partially
// written file is removed on failure.
func (fm *FileManager) Save(dir, name string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}

	cleanup := func(err error) (int64, error) {
		out.Close()
		os.Remove(path)
		return 0, err
	}

	var src io.Reader = r
	if fm.maxUploadBytes > 0 {
		src = io.LimitReader(r, fm.maxUploadBytes+1)
	}
	total, err := io.Copy(out, src)
	if err != nil {
		return cleanup(fmt.Errorf("write file: %w", err))
	}
	if fm.maxUploadBytes > 0 && total > fm.maxUploadBytes {
		return cleanup(ErrTooLarge)
	}

	if err := out.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("close file: %w", err)
	}
	return total, nil
}

// Remove deletes path and prunes directories left empty, never climbing above
// the storage root.
func (fm *FileManager) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	fm.pruneEmpty(filepath.Dir(path))
	return nil
}

// RemoveTree deletes a whole subject directory.
func (fm *FileManager) RemoveTree(dir string) error {
	if !fm.within(dir) || filepath.Clean(dir) == filepath.Clean(fm.root) {
		return fmt.Errorf("refusing to remove %s", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove dir: %w", err)
	}
	return nil
}

// Move relocates a file, creating the destination directory.
func (fm *FileManager) Move(from, to string) error {
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", filepath.Dir(to), err)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("move %s: %w", from, err)
	}
	fm.pruneEmpty(filepath.Dir(from))
	return nil
}

// ListFiles returns the regular files directly inside dir, sorted by name.
// Hidden files and JSON documents are skipped.
func (fm *FileManager) ListFiles(dir string) ([]DiskFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	files := make([]DiskFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, DiskFile{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// ListDirs returns the subdirectory names of dir, sorted.
func (fm *FileManager) ListDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (fm *FileManager) pruneEmpty(dir string) {
	root := filepath.Clean(fm.root)
	for dir = filepath.Clean(dir); dir != root && fm.within(dir); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

func (fm *FileManager) within(path string) bool {
	rel, err := filepath.Rel(fm.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// FormatSize renders a byte count the way listings display it.
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d Bytes", n)
	}
	sizes := []string{"KB", "MB", "GB", "TB"}
	value := float64(n) / unit
	i := 0
	for value >= unit && i < len(sizes)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.2f %s", value, sizes[i])
}

// extOf is filepath.Ext without treating dotfiles as pure extensions.
func extOf(name string) string {
	ext := filepath.Ext(name)
	if ext == name {
		return ""
	}
	return ext
}
