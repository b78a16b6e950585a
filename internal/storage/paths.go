package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"studyvault/internal/domain"
)

// Resolver maps (subject, category, unit, filename) onto the storage tree.
type Resolver struct {
	root       string
	legacy     bool
	registered func(string) bool
}

// NewResolver returns a resolver rooted at root. With legacy set, an unknown
// category that comes with a unit is accepted as a plain subdirectory.
func NewResolver(root string, legacy bool) *Resolver {
	return &Resolver{root: root, legacy: legacy}
}

func (r *Resolver) Root() string {
	return r.root
}

// SkipSubjects excludes subject spellings for which registered reports true
// from the fallback search, so a distinct subject is never mistaken for a
// legacy spelling of another.
func (r *Resolver) SkipSubjects(registered func(string) bool) {
	r.registered = registered
}

// Resolve returns the canonical path of a file.
func (r *Resolver) Resolve(subject string, category domain.Category, unit, filename string) (string, error) {
	dir, err := r.Dir(subject, category, unit)
	if err != nil {
		return "", err
	}
	if err := checkSegment("filename", filename); err != nil {
		return "", err
	}
	return filepath.Join(dir, filename), nil
}

// Dir returns the canonical directory for a (subject, category, unit) triple.
func (r *Resolver) Dir(subject string, category domain.Category, unit string) (string, error) {
	if err := checkSegment("subject", subject); err != nil {
		return "", err
	}

	switch {
	case category == domain.CategoryNotes:
		if strings.TrimSpace(unit) == "" {
			return "", domain.ErrMissingUnit
		}
		if err := checkSegment("unit", unit); err != nil {
			return "", err
		}
		return filepath.Join(r.root, subject, string(category), unit), nil
	case category.Valid():
		return filepath.Join(r.root, subject, string(category)), nil
	case r.legacy && strings.TrimSpace(unit) != "":
		if err := checkSegment("category", string(category)); err != nil {
			return "", err
		}
		return filepath.Join(r.root, subject, string(category)), nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidCategory, category)
}

// Locate returns the first existing path for the file, trying the canonical
// path and then the fallback spellings of the unit or subject segment.
func (r *Resolver) Locate(subject string, category domain.Category, unit, filename string) (string, error) {
	if err := checkSegment("filename", filename); err != nil {
		return "", err
	}
	dirs, err := r.candidateDirs(subject, category, unit)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, filename)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", domain.ErrNotFound, filename)
}

// LocateAll returns every existing copy of the file, canonical path first.
func (r *Resolver) LocateAll(subject string, category domain.Category, unit, filename string) ([]string, error) {
	if err := checkSegment("filename", filename); err != nil {
		return nil, err
	}
	dirs, err := r.candidateDirs(subject, category, unit)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, dir := range dirs {
		path := filepath.Join(dir, filename)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// LocateDir is Locate for the containing directory.
func (r *Resolver) LocateDir(subject string, category domain.Category, unit string) (string, error) {
	dirs, err := r.candidateDirs(subject, category, unit)
	if err != nil {
		return "", err
	}
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s", domain.ErrNotFound, subject, category)
}

// candidateDirs lists the canonical directory followed by the fallback
// spellings, without duplicates. Notes vary the unit segment; every other
// category varies the subject segment.
func (r *Resolver) candidateDirs(subject string, category domain.Category, unit string) ([]string, error) {
	canonical, err := r.Dir(subject, category, unit)
	if err != nil {
		return nil, err
	}

	dirs := []string{canonical}
	seen := map[string]struct{}{canonical: {}}
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	if category == domain.CategoryNotes {
		for _, u := range spellings(unit) {
			add(filepath.Join(r.root, subject, string(category), u))
		}
		return dirs, nil
	}
	for _, s := range spellings(subject) {
		if s != subject && r.registered != nil && r.registered(s) {
			continue
		}
		add(filepath.Join(r.root, s, string(category)))
	}
	return dirs, nil
}

// spellings returns the historical variants of a path segment in search
// order: underscores, hyphens, lower case.
func spellings(segment string) []string {
	return []string{
		strings.ReplaceAll(segment, " ", "_"),
		strings.ReplaceAll(segment, " ", "-"),
		strings.ToLower(segment),
	}
}

var errBadSegment = errors.New("invalid path segment")

func checkSegment(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	if value == "." || value == ".." || strings.ContainsAny(value, `/\`) {
		return fmt.Errorf("%w: %w: %s %q", domain.ErrValidation, errBadSegment, name, value)
	}
	return nil
}
