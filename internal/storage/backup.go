package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"studyvault/internal/domain"
)

// Backup is the structured backup aggregate: every subject and every record,
// one typed list per category.
type Backup struct {
	data domain.BackupAggregate
}

func NewBackup() *Backup {
	b := &Backup{}
	b.ensureLists()
	return b
}

func loadBackup(path string) (*Backup, error) {
	b := NewBackup()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return b, fmt.Errorf("read backup: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(raw, &b.data); err != nil {
		b.data = domain.BackupAggregate{}
		b.ensureLists()
		return b, fmt.Errorf("decode backup: %w", err)
	}
	b.ensureLists()
	return b, nil
}

func (b *Backup) encode() ([]byte, error) {
	return json.MarshalIndent(b.data, "", "  ")
}

func (b *Backup) ensureLists() {
	if b.data.Subjects == nil {
		b.data.Subjects = []domain.Subject{}
	}
	for i := range b.data.Subjects {
		if b.data.Subjects[i].Units == nil {
			b.data.Subjects[i].Units = []string{}
		}
	}
	if b.data.Notes == nil {
		b.data.Notes = []domain.Note{}
	}
	if b.data.PracticeTests == nil {
		b.data.PracticeTests = []domain.PracticeTest{}
	}
	if b.data.Practicals == nil {
		b.data.Practicals = []domain.Practical{}
	}
	if b.data.Assignments == nil {
		b.data.Assignments = []domain.Assignment{}
	}
}

// Upsert stores r, replacing any record in the same category list with the
// same physical identity, and registers its subject and unit.
func (b *Backup) Upsert(r domain.Record) {
	switch v := r.(type) {
	case domain.Note:
		b.data.Notes = upsert(b.data.Notes, v)
	case domain.PracticeTest:
		b.data.PracticeTests = upsert(b.data.PracticeTests, v)
	case domain.Practical:
		b.data.Practicals = upsert(b.data.Practicals, v)
	case domain.Assignment:
		b.data.Assignments = upsert(b.data.Assignments, v)
	default:
		return
	}
	b.registerSubject(r.File().Subject, r.Category(), r.UnitName())
}

// Replace swaps a stored record for r in place, keeping list order. It
// reports false when no record with r's identity exists.
func (b *Backup) Replace(r domain.Record) bool {
	switch v := r.(type) {
	case domain.Note:
		return replace(b.data.Notes, v)
	case domain.PracticeTest:
		return replace(b.data.PracticeTests, v)
	case domain.Practical:
		return replace(b.data.Practicals, v)
	case domain.Assignment:
		return replace(b.data.Assignments, v)
	}
	return false
}

// Remove deletes the record addressed by ref.
func (b *Backup) Remove(ref domain.FileRef) (domain.Record, bool) {
	match := refMatcher(ref)
	switch ref.Category {
	case domain.CategoryNotes:
		return removeRecord(&b.data.Notes, match)
	case domain.CategoryPracticeTests:
		return removeRecord(&b.data.PracticeTests, match)
	case domain.CategoryPracticals:
		return removeRecord(&b.data.Practicals, match)
	case domain.CategoryAssignments:
		return removeRecord(&b.data.Assignments, match)
	}
	return nil, false
}

func (b *Backup) Find(ref domain.FileRef) (domain.Record, bool) {
	match := refMatcher(ref)
	for _, r := range b.Records(ref.Category) {
		if match(r) {
			return r, true
		}
	}
	return nil, false
}

// Records returns the records of one category in stored order.
func (b *Backup) Records(category domain.Category) []domain.Record {
	switch category {
	case domain.CategoryNotes:
		return asRecords(b.data.Notes)
	case domain.CategoryPracticeTests:
		return asRecords(b.data.PracticeTests)
	case domain.CategoryPracticals:
		return asRecords(b.data.Practicals)
	case domain.CategoryAssignments:
		return asRecords(b.data.Assignments)
	}
	return nil
}

// All returns every record, category by category.
func (b *Backup) All() []domain.Record {
	var all []domain.Record
	for _, c := range domain.Categories {
		all = append(all, b.Records(c)...)
	}
	return all
}

func (b *Backup) Empty() bool {
	return len(b.data.Notes)+len(b.data.PracticeTests)+len(b.data.Practicals)+len(b.data.Assignments) == 0
}

func (b *Backup) Subjects() []domain.Subject {
	out := make([]domain.Subject, len(b.data.Subjects))
	for i, s := range b.data.Subjects {
		s.Units = append([]string{}, s.Units...)
		out[i] = s
	}
	return out
}

func (b *Backup) Subject(name string) (domain.Subject, bool) {
	if i := b.subjectIndex(name); i >= 0 {
		return b.data.Subjects[i], true
	}
	return domain.Subject{}, false
}

// AddSubject registers name if unseen and reports whether it was created.
func (b *Backup) AddSubject(name string) (domain.Subject, bool) {
	if i := b.subjectIndex(name); i >= 0 {
		return b.data.Subjects[i], false
	}
	s := domain.Subject{ID: uuid.NewString(), Name: name, Units: []string{}}
	b.data.Subjects = append(b.data.Subjects, s)
	return s, true
}

// RemoveSubject drops the subject and every record filed under it. The
// removed records are returned so the caller can clean up index and disk.
func (b *Backup) RemoveSubject(name string) ([]domain.Record, bool) {
	i := b.subjectIndex(name)
	var removed []domain.Record
	for _, r := range b.All() {
		if r.File().Subject == name {
			removed = append(removed, r)
		}
	}
	bySubject := func(r domain.Record) bool { return r.File().Subject == name }
	b.data.Notes = removeAll(b.data.Notes, bySubject)
	b.data.PracticeTests = removeAll(b.data.PracticeTests, bySubject)
	b.data.Practicals = removeAll(b.data.Practicals, bySubject)
	b.data.Assignments = removeAll(b.data.Assignments, bySubject)

	if i >= 0 {
		b.data.Subjects = append(b.data.Subjects[:i], b.data.Subjects[i+1:]...)
	}
	return removed, i >= 0 || len(removed) > 0
}

// RebuildSubjects reconstructs the subject list from the records when it is
// empty but records exist. Subjects and units keep first-seen order.
func (b *Backup) RebuildSubjects() bool {
	if len(b.data.Subjects) > 0 || b.Empty() {
		return false
	}
	for _, r := range b.All() {
		b.registerSubject(r.File().Subject, r.Category(), r.UnitName())
	}
	return true
}

func (b *Backup) registerSubject(name string, category domain.Category, unit string) {
	s, _ := b.AddSubject(name)
	if category != domain.CategoryNotes || unit == "" || s.HasUnit(unit) {
		return
	}
	i := b.subjectIndex(name)
	b.data.Subjects[i].Units = append(b.data.Subjects[i].Units, unit)
}

func (b *Backup) subjectIndex(name string) int {
	for i, s := range b.data.Subjects {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// samePhysical reports whether two records name the same file on disk:
// equal stored name and subject, and for notes equal unit.
func samePhysical(a, b domain.Record) bool {
	fa, fb := a.File(), b.File()
	if a.Category() != b.Category() || fa.StoredFileName != fb.StoredFileName || fa.Subject != fb.Subject {
		return false
	}
	return a.Category() != domain.CategoryNotes || a.UnitName() == b.UnitName()
}

func refMatcher(ref domain.FileRef) func(domain.Record) bool {
	return func(r domain.Record) bool {
		f := r.File()
		if f.StoredFileName != ref.StoredFileName || f.Subject != ref.Subject {
			return false
		}
		return r.Category() != domain.CategoryNotes || r.UnitName() == ref.Unit
	}
}

func upsert[T domain.Record](list []T, rec T) []T {
	list = removeAll(list, func(r domain.Record) bool { return samePhysical(r, rec) })
	return append(list, rec)
}

func replace[T domain.Record](list []T, rec T) bool {
	for i := range list {
		if samePhysical(list[i], rec) {
			list[i] = rec
			return true
		}
	}
	return false
}

func removeRecord[T domain.Record](list *[]T, match func(domain.Record) bool) (domain.Record, bool) {
	for i, r := range *list {
		if match(r) {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return r, true
		}
	}
	return nil, false
}

func removeAll[T domain.Record](list []T, match func(domain.Record) bool) []T {
	out := list[:0]
	for _, r := range list {
		if !match(r) {
			out = append(out, r)
		}
	}
	return out
}

func asRecords[T domain.Record](list []T) []domain.Record {
	out := make([]domain.Record, len(list))
	for i, r := range list {
		out[i] = r
	}
	return out
}
