package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/domain"
)

func note(subject, unit, stored, title string) domain.Note {
	return domain.Note{
		StoredFile: domain.StoredFile{
			Subject:        subject,
			StoredFileName: stored,
			Title:          title,
			Category:       domain.CategoryNotes,
		},
		Unit: unit,
	}
}

func assignment(subject, stored, title string) domain.Assignment {
	return domain.Assignment{StoredFile: domain.StoredFile{
		Subject:        subject,
		StoredFileName: stored,
		Title:          title,
		Category:       domain.CategoryAssignments,
	}}
}

func TestUpsertReplacesSamePhysicalFile(t *testing.T) {
	b := NewBackup()

	b.Upsert(note("Math", "U1", "sets.pdf", "first"))
	b.Upsert(note("Math", "U1", "sets.pdf", "second"))

	recs := b.Records(domain.CategoryNotes)
	require.Len(t, recs, 1)
	assert.Equal(t, "second", recs[0].File().Title)
}

func TestUpsertKeepsDistinctUnitsAndSubjects(t *testing.T) {
	b := NewBackup()

	b.Upsert(note("Math", "U1", "sets.pdf", "a"))
	b.Upsert(note("Math", "U2", "sets.pdf", "b"))
	b.Upsert(note("Physics", "U1", "sets.pdf", "c"))
	b.Upsert(assignment("Math", "sets.pdf", "d"))

	assert.Len(t, b.Records(domain.CategoryNotes), 3)
	assert.Len(t, b.Records(domain.CategoryAssignments), 1)
}

func TestUpsertRegistersSubjectsAndUnits(t *testing.T) {
	b := NewBackup()

	b.Upsert(assignment("Bio", "hw.pdf", "hw"))
	b.Upsert(note("Math", "U2", "a.pdf", "a"))
	b.Upsert(note("Math", "U1", "b.pdf", "b"))
	b.Upsert(note("Math", "U2", "c.pdf", "c"))

	subjects := b.Subjects()
	require.Len(t, subjects, 2)
	assert.Equal(t, "Bio", subjects[0].Name)
	assert.Equal(t, []string{}, subjects[0].Units)
	assert.Equal(t, "Math", subjects[1].Name)
	assert.Equal(t, []string{"U2", "U1"}, subjects[1].Units)
	assert.NotEmpty(t, subjects[1].ID)
}

func TestRebuildSubjectsFromRecords(t *testing.T) {
	b := NewBackup()
	b.data.Notes = []domain.Note{
		note("Math", "U1", "a.pdf", "a"),
		note("Math", "U2", "b.pdf", "b"),
		note("Math", "U1", "c.pdf", "c"),
	}

	require.True(t, b.RebuildSubjects())
	subjects := b.Subjects()
	require.Len(t, subjects, 1)
	assert.Equal(t, "Math", subjects[0].Name)
	assert.Equal(t, []string{"U1", "U2"}, subjects[0].Units)

	assert.False(t, b.RebuildSubjects(), "non-empty subject list is left alone")
}

func TestRebuildSubjectsNoRecords(t *testing.T) {
	assert.False(t, NewBackup().RebuildSubjects())
}

func TestRemoveAndFind(t *testing.T) {
	b := NewBackup()
	b.Upsert(note("Math", "U1", "a.pdf", "a"))
	b.Upsert(assignment("Math", "hw.pdf", "hw"))

	ref := domain.FileRef{Subject: "Math", Category: domain.CategoryNotes, Unit: "U1", StoredFileName: "a.pdf"}
	_, ok := b.Find(ref)
	require.True(t, ok)

	wrongUnit := ref
	wrongUnit.Unit = "U2"
	_, ok = b.Remove(wrongUnit)
	assert.False(t, ok)

	rec, ok := b.Remove(ref)
	require.True(t, ok)
	assert.Equal(t, "a", rec.File().Title)
	_, ok = b.Find(ref)
	assert.False(t, ok)

	subj, ok := b.Subject("Math")
	require.True(t, ok)
	assert.Equal(t, []string{"U1"}, subj.Units, "units are never pruned by record removal")
}

func TestRemoveSubject(t *testing.T) {
	b := NewBackup()
	b.Upsert(note("Math", "U1", "a.pdf", "a"))
	b.Upsert(assignment("Math", "hw.pdf", "hw"))
	b.Upsert(assignment("Bio", "hw.pdf", "hw"))

	removed, ok := b.RemoveSubject("Math")
	require.True(t, ok)
	assert.Len(t, removed, 2)
	assert.Len(t, b.All(), 1)
	_, ok = b.Subject("Math")
	assert.False(t, ok)

	_, ok = b.RemoveSubject("Chemistry")
	assert.False(t, ok)
}

func TestReplaceKeepsOrder(t *testing.T) {
	b := NewBackup()
	b.Upsert(assignment("Math", "a.pdf", "a"))
	b.Upsert(assignment("Math", "b.pdf", "b"))

	assert.True(t, b.Replace(assignment("Math", "a.pdf", "A")))
	recs := b.Records(domain.CategoryAssignments)
	assert.Equal(t, "A", recs[0].File().Title)
	assert.Equal(t, "b", recs[1].File().Title)

	assert.False(t, b.Replace(assignment("Math", "zzz.pdf", "z")))
}
