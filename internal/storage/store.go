package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyvault/internal/domain"
	"studyvault/internal/logger"
)

type Options struct {
	StorageDir     string
	MetadataFile   string
	BackupFile     string
	MaxUploadBytes int64
	// Accept unknown categories carrying a unit as plain subdirectories.
	LegacyCategoryPassthrough bool
}

// Store owns the storage tree and both metadata documents. One Store is
// built at startup and shared by every handler.
type Store struct {
	mu sync.RWMutex

	log      *logger.Logger
	resolver *Resolver
	files    *FileManager

	indexPath  string
	backupPath string
	index      *Index
	backup     *Backup

	now func() time.Time
}

type UploadInput struct {
	Title       string
	Description string
	Subject     string
	Category    string
	Unit        string
	FileName    string
	Content     io.Reader
	Owner       string
}

// NewStore prepares the storage root and loads both documents. Missing or
// corrupt documents load as empty; call Reconcile to repair divergence.
func NewStore(opts Options, log *logger.Logger) (*Store, error) {
	fm, err := NewFileManager(opts.StorageDir, opts.MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	s := &Store{
		log:        log.With("service", "Store"),
		resolver:   NewResolver(opts.StorageDir, opts.LegacyCategoryPassthrough),
		files:      fm,
		indexPath:  opts.MetadataFile,
		backupPath: opts.BackupFile,
		now:        time.Now,
	}
	s.resolver.SkipSubjects(func(name string) bool {
		_, ok := s.backup.Subject(name)
		return ok
	})
	s.Load()
	return s, nil
}

// Load replaces the in-memory state with the persisted documents.
func (s *Store) Load() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.index, err = loadIndex(s.indexPath); err != nil {
		s.log.Warn("metadata index unreadable, starting empty", "path", s.indexPath, "error", err)
	}
	if s.backup, err = loadBackup(s.backupPath); err != nil {
		s.log.Warn("backup unreadable, starting empty", "path", s.backupPath, "error", err)
	}
	s.log.Info("metadata loaded", "entries", s.index.Len(), "records", len(s.backup.All()))
}

func (s *Store) Resolver() *Resolver {
	return s.resolver
}

// Persist writes the index document and then the backup document.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	raw, err := s.index.encode()
	if err != nil {
		return fmt.Errorf("%w: encode metadata index: %w", domain.ErrPersistence, err)
	}
	if err := writeFileAtomic(s.indexPath, raw); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}

	s.backup.data.LastBackup = s.now().UTC().Format(time.RFC3339)
	raw, err = s.backup.encode()
	if err != nil {
		return fmt.Errorf("%w: encode backup: %w", domain.ErrPersistence, err)
	}
	if err := writeFileAtomic(s.backupPath, raw); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

// commitLocked closes a mutation: it fills index gaps and persists. A
// persistence failure is logged and swallowed because the in-memory state
// has already changed; the next Reconcile repairs the documents.
func (s *Store) commitLocked(op string) {
	s.syncIndexLocked()
	if err := s.persistLocked(); err != nil {
		s.log.Error("persist after mutation failed", "op", op, "error", err)
	}
}

func (s *Store) Upload(ctx context.Context, in UploadInput) (domain.Record, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if in.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrValidation)
	}
	if in.Content == nil || strings.TrimSpace(in.FileName) == "" {
		return nil, fmt.Errorf("%w: file is required", domain.ErrValidation)
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return nil, err
	}
	if category != domain.CategoryNotes {
		in.Unit = ""
	}
	dir, err := s.resolver.Dir(in.Subject, category, in.Unit)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	storedName, size, err := s.saveUnique(dir, in.FileName, in.Content, now)
	if err != nil {
		return nil, err
	}

	file := domain.StoredFile{
		ID:                uuid.NewString(),
		Title:             in.Title,
		Description:       in.Description,
		OriginalFileName:  filepath.Base(in.FileName),
		StoredFileName:    storedName,
		FileSizeFormatted: FormatSize(size),
		UploadDate:        now.UTC().Format(time.RFC3339),
		Subject:           in.Subject,
		Category:          category,
		FilePath:          filepath.Join(dir, storedName),
		Owner:             in.Owner,
	}
	rec, err := domain.NewRecord(file, in.Unit)
	if err != nil {
		_ = s.files.Remove(file.FilePath)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.backup.Upsert(rec)
	s.index.Set(domain.KeyOf(rec), entryOf(rec))
	s.commitLocked("upload")

	s.log.Info("file uploaded", "key", domain.KeyOf(rec), "size", file.FileSizeFormatted, "owner", in.Owner)
	return rec, nil
}

// saveUnique writes the upload under a timestamped name that does not exist
// yet in dir, moving the timestamp forward on collision.
func (s *Store) saveUnique(dir, original string, content io.Reader, now time.Time) (string, int64, error) {
	for attempt := 0; attempt < 100; attempt++ {
		name := StoredName(original, now.Add(time.Duration(attempt)*time.Millisecond))
		size, err := s.files.Save(dir, name, content)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", 0, err
		}
		return name, size, nil
	}
	return "", 0, fmt.Errorf("no free file name for %s", original)
}

// Delete removes a file, its index entry and its backup record. It fails
// with ErrNotFound only when none of the three exist.
func (s *Store) Delete(ref domain.FileRef) (domain.Record, error) {
	ref = normalizeRef(ref)
	if _, err := s.resolver.Resolve(ref.Subject, ref.Category, ref.Unit, ref.StoredFileName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := s.resolver.LocateAll(ref.Subject, ref.Category, ref.Unit, ref.StoredFileName)
	if err != nil {
		return nil, err
	}
	key := ref.Key()
	_, hasEntry := s.index.Get(key)
	_, hasRecord := s.backup.Find(ref)
	if len(paths) == 0 && !hasEntry && !hasRecord {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, ref.StoredFileName)
	}

	// every spelling goes; a later Lookup must come back NotFound
	for _, path := range paths {
		if err := s.files.Remove(path); err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		s.log.Warn("deleting metadata of a file missing on disk", "key", key)
	}

	rec, _ := s.backup.Remove(ref)
	s.index.Delete(key)
	s.commitLocked("delete")

	s.log.Info("file deleted", "key", key)
	return rec, nil
}

// Rename updates the display title and description of a stored file.
func (s *Store) Rename(ref domain.FileRef, title, description string) (domain.MetadataEntry, error) {
	ref = normalizeRef(ref)
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.MetadataEntry{}, fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if _, err := s.resolver.Resolve(ref.Subject, ref.Category, ref.Unit, ref.StoredFileName); err != nil {
		return domain.MetadataEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := ref.Key()
	entry, hasEntry := s.index.Get(key)
	rec, hasRecord := s.backup.Find(ref)
	if !hasEntry && !hasRecord {
		if _, err := s.resolver.Locate(ref.Subject, ref.Category, ref.Unit, ref.StoredFileName); err != nil {
			return domain.MetadataEntry{}, err
		}
		entry.OriginalFileName = ref.StoredFileName
	}

	entry.Title = strings.TrimSpace(title)
	entry.Description = strings.TrimSpace(description)
	if hasRecord {
		f := rec.File()
		f.Title, f.Description = entry.Title, entry.Description
		if entry.OriginalFileName == "" {
			entry.OriginalFileName = f.OriginalFileName
		}
		s.backup.Replace(domain.WithFile(rec, f))
	}
	s.index.Set(key, entry)
	s.commitLocked("rename")

	return entry, nil
}

// CreateSubject registers a subject and creates its directory. Creating an
// existing subject is a no-op.
func (s *Store) CreateSubject(name string) (domain.Subject, bool, error) {
	name = strings.TrimSpace(name)
	if err := checkSegment("subject", name); err != nil {
		return domain.Subject{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject, created := s.backup.AddSubject(name)
	if !created {
		return subject, false, nil
	}
	if err := os.MkdirAll(filepath.Join(s.resolver.Root(), name), 0o755); err != nil {
		s.log.Warn("create subject dir failed", "subject", name, "error", err)
	}
	s.commitLocked("create-subject")
	return subject, true, nil
}

// DeleteSubject drops a subject, its records, its index entries and every
// directory spelling of it on disk.
func (s *Store) DeleteSubject(name string) error {
	name = strings.TrimSpace(name)
	if err := checkSegment("subject", name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, found := s.backup.RemoveSubject(name)
	for _, r := range removed {
		s.index.Delete(domain.KeyOf(r))
	}

	dirs := map[string]struct{}{name: {}}
	for _, sp := range spellings(name) {
		dirs[sp] = struct{}{}
	}
	for d := range dirs {
		if _, other := s.backup.Subject(d); other && d != name {
			continue
		}
		dir := filepath.Join(s.resolver.Root(), d)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		found = true
		for _, key := range s.subjectKeys(name, dir) {
			s.index.Delete(key)
		}
		if err := s.files.RemoveTree(dir); err != nil {
			return err
		}
	}
	if !found {
		return fmt.Errorf("%w: subject %s", domain.ErrNotFound, name)
	}

	s.commitLocked("delete-subject")
	s.log.Info("subject deleted", "subject", name, "records", len(removed))
	return nil
}

// subjectKeys lists the index keys of the files found under one on-disk
// spelling of a subject directory.
func (s *Store) subjectKeys(subject, dir string) []string {
	var keys []string
	for _, c := range domain.Categories {
		catDir := filepath.Join(dir, string(c))
		if c != domain.CategoryNotes {
			files, _ := s.files.ListFiles(catDir)
			for _, f := range files {
				keys = append(keys, domain.MetadataKey(subject, c, "", f.Name))
			}
			continue
		}
		units, _ := s.files.ListDirs(catDir)
		for _, unit := range units {
			files, _ := s.files.ListFiles(filepath.Join(catDir, unit))
			for _, f := range files {
				keys = append(keys, domain.MetadataKey(subject, c, unit, f.Name))
			}
		}
	}
	return keys
}

// Lookup returns the on-disk path of a file, following the fallback spellings.
func (s *Store) Lookup(ref domain.FileRef) (string, error) {
	ref = normalizeRef(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolver.Locate(ref.Subject, ref.Category, ref.Unit, ref.StoredFileName)
}

// FindByKey returns the backup record stored under an index key.
func (s *Store) FindByKey(key string) (domain.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.backup.All() {
		if domain.KeyOf(r) == key {
			return r, true
		}
	}
	return nil, false
}

func (s *Store) Entry(key string) (domain.MetadataEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Get(key)
}

func (s *Store) Subjects() []domain.Subject {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backup.Subjects()
}

func (s *Store) Records(category domain.Category) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backup.Records(category)
}

// RecordsBySubject returns every record of one subject, category by category.
func (s *Store) RecordsBySubject(subject string) []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Record
	for _, r := range s.backup.All() {
		if r.File().Subject == subject {
			out = append(out, r)
		}
	}
	return out
}

func entryOf(r domain.Record) domain.MetadataEntry {
	f := r.File()
	return domain.MetadataEntry{Title: f.Title, Description: f.Description, OriginalFileName: f.OriginalFileName}
}

func normalizeRef(ref domain.FileRef) domain.FileRef {
	ref.Subject = strings.TrimSpace(ref.Subject)
	ref.Category = domain.Category(strings.TrimSpace(string(ref.Category)))
	ref.Unit = strings.TrimSpace(ref.Unit)
	if ref.Category != domain.CategoryNotes && ref.Category.Valid() {
		ref.Unit = ""
	}
	return ref
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp %s: %w", filepath.Base(path), err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp %s: %w", filepath.Base(path), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
