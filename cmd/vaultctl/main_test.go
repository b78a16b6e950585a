package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/domain"
	"studyvault/internal/storage"
)

func TestRenderTree(t *testing.T) {
	views := []storage.SubjectView{{
		Name:   "Math",
		Source: "backup",
		Files: []storage.FileView{
			{Title: "Sets", StoredFileName: "sets_1.pdf", FileSizeFormatted: "1.00 KB", Category: domain.CategoryNotes, Unit: "U1"},
			{Title: "Limits", StoredFileName: "limits_1.pdf", FileSizeFormatted: "2.00 KB", Category: domain.CategoryNotes, Unit: "U2"},
			{Title: "HW", StoredFileName: "hw_1.pdf", FileSizeFormatted: "3 Bytes", Category: domain.CategoryAssignments},
		},
	}}

	out := renderTree("storage", views)
	assert.True(t, strings.HasPrefix(out, "storage\n"))
	for _, want := range []string{"Math (backup)", "notes", "U1", "U2", "Sets  [sets_1.pdf, 1.00 KB]", "assignments", "HW  [hw_1.pdf, 3 Bytes]"} {
		assert.Contains(t, out, want)
	}
}

func TestRunReconcileAndTree(t *testing.T) {
	dir := t.TempDir()
	for _, key := range []string{"CONFIG_FILE", "STORAGE_DIR", "METADATA_FILE", "BACKUP_FILE"} {
		t.Setenv(key, "")
	}
	t.Setenv("DATA_DIR", dir)
	touched := filepath.Join(dir, "storage", "History", "notes", "Rome", "Empire_Notes_1700000000000.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(touched), 0o755))
	require.NoError(t, os.WriteFile(touched, []byte("x"), 0o644))

	var out, errOut bytes.Buffer
	require.Equal(t, 0, run([]string{"reconcile"}, &out, &errOut), errOut.String())
	assert.Equal(t, "already consistent\n", out.String())

	out.Reset()
	require.Equal(t, 0, run([]string{"tree"}, &out, &errOut), errOut.String())
	assert.Contains(t, out.String(), "History (disk)")
	assert.Contains(t, out.String(), "Empire Notes")
}

func TestRunUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, &out, &errOut))
	assert.Contains(t, errOut.String(), "ACTIONs")

	t.Setenv("DATA_DIR", t.TempDir())
	errOut.Reset()
	assert.Equal(t, 2, run([]string{"explode"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown action "explode"`)
}
