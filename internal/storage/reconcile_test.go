package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/domain"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	raw, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, raw, 0o644))
}

func readBackup(t *testing.T, path string) domain.BackupAggregate {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var agg domain.BackupAggregate
	require.NoError(t, json.Unmarshal(raw, &agg))
	return agg
}

func TestReconcileRebuildsSubjectsFromRecords(t *testing.T) {
	opts := testOptions(t)
	writeJSON(t, opts.BackupFile, domain.BackupAggregate{
		Subjects: []domain.Subject{},
		Notes: []domain.Note{
			note("Math", "U1", "a.pdf", "a"),
			note("Math", "U2", "b.pdf", "b"),
		},
	})
	s := newTestStore(t, opts)

	changed, err := s.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)

	agg := readBackup(t, opts.BackupFile)
	require.Len(t, agg.Subjects, 1)
	assert.Equal(t, "Math", agg.Subjects[0].Name)
	assert.Equal(t, []string{"U1", "U2"}, agg.Subjects[0].Units)
	assert.Len(t, agg.Notes, 2)
	assert.NotEmpty(t, agg.LastBackup)
}

func TestReconcileSynthesizesIndexEntries(t *testing.T) {
	opts := testOptions(t)
	rec := note("Math", "U1", "a.pdf", "Sets")
	rec.Description = "week one"
	rec.OriginalFileName = "sets.pdf"
	writeJSON(t, opts.BackupFile, domain.BackupAggregate{
		Subjects: []domain.Subject{{ID: "1", Name: "Math", Units: []string{"U1"}}},
		Notes:    []domain.Note{rec},
	})
	s := newTestStore(t, opts)

	_, err := s.Reconcile()
	require.NoError(t, err)

	entry, ok := s.Entry("Math-notes-U1-a.pdf")
	require.True(t, ok)
	assert.Equal(t, domain.MetadataEntry{Title: "Sets", Description: "week one", OriginalFileName: "sets.pdf"}, entry)
	assert.FileExists(t, opts.MetadataFile)
}

func TestReconcileIsIdempotent(t *testing.T) {
	opts := testOptions(t)
	writeJSON(t, opts.BackupFile, domain.BackupAggregate{
		Notes:       []domain.Note{note("Math", "U1", "a.pdf", "a")},
		Assignments: []domain.Assignment{assignment("Bio", "hw.pdf", "hw")},
	})
	s := newTestStore(t, opts)

	changed, err := s.Reconcile()
	require.NoError(t, err)
	require.True(t, changed)

	index1, err := os.ReadFile(opts.MetadataFile)
	require.NoError(t, err)
	backup1, err := os.ReadFile(opts.BackupFile)
	require.NoError(t, err)

	changed, err = s.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed)

	// a fresh process reading the repaired documents finds nothing to do
	again := newTestStore(t, opts)
	changed, err = again.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed)

	index2, err := os.ReadFile(opts.MetadataFile)
	require.NoError(t, err)
	backup2, err := os.ReadFile(opts.BackupFile)
	require.NoError(t, err)
	assert.Equal(t, string(index1), string(index2))
	assert.Equal(t, string(backup1), string(backup2))
}

func TestReconcileRelocatesFallbackFiles(t *testing.T) {
	opts := testOptions(t)
	stray := filepath.Join(opts.StorageDir, "Math", "notes", "Unit_One", "a.pdf")
	touch(t, stray)
	writeJSON(t, opts.BackupFile, domain.BackupAggregate{
		Subjects: []domain.Subject{{ID: "1", Name: "Math", Units: []string{"Unit One"}}},
		Notes:    []domain.Note{note("Math", "Unit One", "a.pdf", "a")},
	})
	s := newTestStore(t, opts)

	changed, err := s.Reconcile()
	require.NoError(t, err)
	assert.True(t, changed)

	canonical := filepath.Join(opts.StorageDir, "Math", "notes", "Unit One", "a.pdf")
	assert.FileExists(t, canonical)
	assert.NoFileExists(t, stray)
	assert.NoDirExists(t, filepath.Dir(stray))

	agg := readBackup(t, opts.BackupFile)
	require.Len(t, agg.Notes, 1)
	assert.Equal(t, canonical, agg.Notes[0].FilePath)
	assert.Equal(t, domain.CategoryNotes, agg.Notes[0].StoredFile.Category)
}

func TestReconcileKeepsRecordsWithMissingFiles(t *testing.T) {
	opts := testOptions(t)
	writeJSON(t, opts.BackupFile, domain.BackupAggregate{
		Subjects:    []domain.Subject{{ID: "1", Name: "Bio", Units: []string{}}},
		Assignments: []domain.Assignment{assignment("Bio", "gone.pdf", "gone")},
	})
	s := newTestStore(t, opts)

	_, err := s.Reconcile()
	require.NoError(t, err)
	assert.Len(t, s.Records(domain.CategoryAssignments), 1)
}

func TestCorruptDocumentsLoadEmpty(t *testing.T) {
	opts := testOptions(t)
	require.NoError(t, os.MkdirAll(opts.StorageDir, 0o755))
	require.NoError(t, os.WriteFile(opts.MetadataFile, []byte("{broken"), 0o644))
	require.NoError(t, os.WriteFile(opts.BackupFile, []byte("[1,2"), 0o644))

	s := newTestStore(t, opts)
	assert.Empty(t, s.Subjects())
	assert.Empty(t, s.Records(domain.CategoryNotes))

	changed, err := s.Reconcile()
	require.NoError(t, err)
	assert.False(t, changed, "nothing to repair in an empty store")
}
