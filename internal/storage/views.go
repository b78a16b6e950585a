package storage

import (
	"errors"
	"path/filepath"
	"time"

	"studyvault/internal/domain"
)

// FileView is one entry of a directory listing, decorated for display.
type FileView struct {
	Key               string          `json:"key"`
	StoredFileName    string          `json:"storedFileName"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	OriginalFileName  string          `json:"originalFileName"`
	FileSizeFormatted string          `json:"fileSizeFormatted"`
	UploadDate        string          `json:"uploadDate"`
	Subject           string          `json:"subject"`
	Category          domain.Category `json:"category"`
	Unit              string          `json:"unit,omitempty"`
}

// SubjectView is one subject as served by the storage-sync read path.
// Source is "backup" when the backup aggregate knows the subject and "disk"
// for a view synthesized from the directory tree.
type SubjectView struct {
	Name   string     `json:"name"`
	Units  []string   `json:"units"`
	Source string     `json:"source"`
	Files  []FileView `json:"files"`
}

// List scans one storage directory and decorates each file with its index
// entry, or a synthesized title when there is none. A missing directory
// lists as empty.
func (s *Store) List(subject string, category domain.Category, unit string) ([]FileView, error) {
	ref := normalizeRef(domain.FileRef{Subject: subject, Category: category, Unit: unit})

	s.mu.RLock()
	defer s.mu.RUnlock()

	dir, err := s.resolver.LocateDir(ref.Subject, ref.Category, ref.Unit)
	if errors.Is(err, domain.ErrNotFound) {
		return []FileView{}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.scanDirLocked(dir, ref.Subject, ref.Category, ref.Unit)
}

func (s *Store) scanDirLocked(dir, subject string, category domain.Category, unit string) ([]FileView, error) {
	files, err := s.files.ListFiles(dir)
	if err != nil {
		return nil, err
	}
	views := make([]FileView, 0, len(files))
	for _, f := range files {
		if filepath.Join(dir, f.Name) == s.backupPath {
			continue
		}
		key := domain.MetadataKey(subject, category, unit, f.Name)
		v := FileView{
			Key:               key,
			StoredFileName:    f.Name,
			FileSizeFormatted: FormatSize(f.Size),
			UploadDate:        f.ModTime.UTC().Format(time.RFC3339),
			Subject:           subject,
			Category:          category,
			Unit:              unit,
		}
		if entry, ok := s.index.Get(key); ok {
			v.Title, v.Description, v.OriginalFileName = entry.Title, entry.Description, entry.OriginalFileName
		} else {
			v.Title, v.OriginalFileName = DisplayTitle(f.Name), f.Name
		}
		views = append(views, v)
	}
	return views, nil
}

// Sync builds the storage-sync view. Subjects known to the backup are served
// from it and their directories are not scanned; any other subject directory
// is turned into a transient view from the listing and the index.
func (s *Store) Sync() ([]SubjectView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var views []SubjectView
	known := map[string]struct{}{}
	for _, subj := range s.backup.Subjects() {
		known[subj.Name] = struct{}{}
		v := SubjectView{Name: subj.Name, Units: subj.Units, Source: "backup", Files: []FileView{}}
		for _, r := range s.backup.All() {
			if r.File().Subject == subj.Name {
				v.Files = append(v.Files, viewOf(r))
			}
		}
		views = append(views, v)
	}

	dirs, err := s.files.ListDirs(s.resolver.Root())
	if err != nil {
		return nil, err
	}
	for _, name := range dirs {
		if _, ok := known[name]; ok {
			continue
		}
		v, err := s.scanSubjectLocked(name)
		if err != nil {
			s.log.Warn("sync: skipping unreadable subject dir", "subject", name, "error", err)
			continue
		}
		views = append(views, v)
	}
	return views, nil
}

func (s *Store) scanSubjectLocked(subject string) (SubjectView, error) {
	v := SubjectView{Name: subject, Units: []string{}, Source: "disk", Files: []FileView{}}
	root := filepath.Join(s.resolver.Root(), subject)

	for _, c := range domain.Categories {
		dir := filepath.Join(root, string(c))
		if c != domain.CategoryNotes {
			files, err := s.scanDirLocked(dir, subject, c, "")
			if err != nil {
				continue
			}
			v.Files = append(v.Files, files...)
			continue
		}
		units, err := s.files.ListDirs(dir)
		if err != nil {
			continue
		}
		for _, unit := range units {
			files, err := s.scanDirLocked(filepath.Join(dir, unit), subject, c, unit)
			if err != nil {
				return v, err
			}
			v.Units = append(v.Units, unit)
			v.Files = append(v.Files, files...)
		}
	}
	return v, nil
}

func viewOf(r domain.Record) FileView {
	f := r.File()
	return FileView{
		Key:               domain.KeyOf(r),
		StoredFileName:    f.StoredFileName,
		Title:             f.Title,
		Description:       f.Description,
		OriginalFileName:  f.OriginalFileName,
		FileSizeFormatted: f.FileSizeFormatted,
		UploadDate:        f.UploadDate,
		Subject:           f.Subject,
		Category:          r.Category(),
		Unit:              r.UnitName(),
	}
}
