package storage

import (
	"errors"

	"studyvault/internal/domain"
)

// Reconcile cross-checks the backup, the index and the storage tree and
// repairs whichever lags behind. It persists only when something changed,
// so a second run with no mutation in between leaves both documents
// untouched.
func (s *Store) Reconcile() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	synthesized := s.syncIndexLocked()
	rebuilt := s.backup.RebuildSubjects()
	relocated := s.relocateLocked()

	changed := synthesized > 0 || rebuilt || relocated > 0
	if !changed {
		s.log.Debug("reconcile: consistent")
		return false, nil
	}

	s.log.Info("reconcile: repaired",
		"index_entries", synthesized,
		"subjects_rebuilt", rebuilt,
		"records_relocated", relocated)
	if err := s.persistLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// syncIndexLocked synthesizes index entries for backup records that have
// none, using the record's own title, description and original name.
func (s *Store) syncIndexLocked() int {
	n := 0
	for _, r := range s.backup.All() {
		key := domain.KeyOf(r)
		if _, ok := s.index.Get(key); ok {
			continue
		}
		s.index.Set(key, entryOf(r))
		n++
	}
	return n
}

// relocateLocked moves files that only exist under a fallback spelling onto
// their canonical path, and rewrites stale filePath and category fields.
func (s *Store) relocateLocked() int {
	n := 0
	for _, r := range s.backup.All() {
		f := r.File()
		canonical, err := s.resolver.Resolve(f.Subject, r.Category(), r.UnitName(), f.StoredFileName)
		if err != nil {
			s.log.Warn("reconcile: record has no canonical path", "key", domain.KeyOf(r), "error", err)
			continue
		}

		found, err := s.resolver.Locate(f.Subject, r.Category(), r.UnitName(), f.StoredFileName)
		switch {
		case err == nil && found != canonical:
			if err := s.files.Move(found, canonical); err != nil {
				s.log.Warn("reconcile: relocation failed", "from", found, "to", canonical, "error", err)
				continue
			}
			s.log.Info("reconcile: relocated file", "from", found, "to", canonical)
		case errors.Is(err, domain.ErrNotFound):
			s.log.Debug("reconcile: file missing on disk", "key", domain.KeyOf(r))
		}

		if f.FilePath == canonical && f.Category == r.Category() {
			continue
		}
		f.FilePath, f.Category = canonical, r.Category()
		s.backup.Replace(domain.WithFile(r, f))
		n++
	}
	return n
}
