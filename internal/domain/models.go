package domain

import (
	"fmt"
	"strings"
)

type Category string

const (
	CategoryNotes         Category = "notes"
	CategoryPracticeTests Category = "practice-tests"
	CategoryPracticals    Category = "practicals"
	CategoryAssignments   Category = "assignments"
)

// Categories lists every category in backup document order.
var Categories = []Category{
	CategoryNotes,
	CategoryPracticeTests,
	CategoryPracticals,
	CategoryAssignments,
}

func ParseCategory(value string) (Category, error) {
	c := Category(strings.TrimSpace(value))
	if c.Valid() {
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, value)
}

func (c Category) Valid() bool {
	switch c {
	case CategoryNotes, CategoryPracticeTests, CategoryPracticals, CategoryAssignments:
		return true
	}
	return false
}

// StoredFile is one uploaded artifact. FilePath is derived from the other
// location fields and is rewritten by the store, never set by callers.
type StoredFile struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	OriginalFileName  string   `json:"originalFileName"`
	StoredFileName    string   `json:"storedFileName"`
	FileSizeFormatted string   `json:"fileSizeFormatted"`
	UploadDate        string   `json:"uploadDate"`
	Subject           string   `json:"subject"`
	Category          Category `json:"category"`
	FilePath          string   `json:"filePath"`
	Owner             string   `json:"owner,omitempty"`
}

// Record is implemented by the four category variants.
type Record interface {
	File() StoredFile
	Category() Category
	UnitName() string
}

type Note struct {
	StoredFile
	Unit string `json:"unit"`
}

type PracticeTest struct {
	StoredFile
}

type Practical struct {
	StoredFile
}

type Assignment struct {
	StoredFile
}

func (n Note) File() StoredFile   { return n.StoredFile }
func (n Note) Category() Category { return CategoryNotes }
func (n Note) UnitName() string   { return n.Unit }

func (p PracticeTest) File() StoredFile   { return p.StoredFile }
func (p PracticeTest) Category() Category { return CategoryPracticeTests }
func (p PracticeTest) UnitName() string   { return "" }

func (p Practical) File() StoredFile   { return p.StoredFile }
func (p Practical) Category() Category { return CategoryPracticals }
func (p Practical) UnitName() string   { return "" }

func (a Assignment) File() StoredFile   { return a.StoredFile }
func (a Assignment) Category() Category { return CategoryAssignments }
func (a Assignment) UnitName() string   { return "" }

// NewRecord wraps file in the variant matching file.Category. The unit is
// required for notes and dropped for every other category.
func NewRecord(file StoredFile, unit string) (Record, error) {
	switch file.Category {
	case CategoryNotes:
		unit = strings.TrimSpace(unit)
		if unit == "" {
			return nil, ErrMissingUnit
		}
		return Note{StoredFile: file, Unit: unit}, nil
	case CategoryPracticeTests:
		return PracticeTest{StoredFile: file}, nil
	case CategoryPracticals:
		return Practical{StoredFile: file}, nil
	case CategoryAssignments:
		return Assignment{StoredFile: file}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidCategory, file.Category)
}

// WithFile returns a copy of r carrying file, keeping the variant and unit.
func WithFile(r Record, file StoredFile) Record {
	file.Category = r.Category()
	switch v := r.(type) {
	case Note:
		v.StoredFile = file
		return v
	case PracticeTest:
		v.StoredFile = file
		return v
	case Practical:
		v.StoredFile = file
		return v
	case Assignment:
		v.StoredFile = file
		return v
	}
	return r
}

type Subject struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Units []string `json:"units"`
}

func (s Subject) HasUnit(unit string) bool {
	for _, u := range s.Units {
		if u == unit {
			return true
		}
	}
	return false
}

// MetadataEntry is the value stored in the flat metadata index.
type MetadataEntry struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	OriginalFileName string `json:"originalFileName"`
}

type BackupAggregate struct {
	Subjects      []Subject      `json:"subjects"`
	Notes         []Note         `json:"notes"`
	PracticeTests []PracticeTest `json:"practiceTests"`
	Practicals    []Practical    `json:"practicals"`
	Assignments   []Assignment   `json:"assignments"`
	LastBackup    string         `json:"lastBackup"`
}

// MetadataKey builds the flat index key. The unit segment is empty for every
// category except notes.
func MetadataKey(subject string, category Category, unit, storedFileName string) string {
	if category != CategoryNotes {
		unit = ""
	}
	return fmt.Sprintf("%s-%s-%s-%s", subject, category, unit, storedFileName)
}

// KeyOf returns the metadata index key of r.
func KeyOf(r Record) string {
	f := r.File()
	return MetadataKey(f.Subject, r.Category(), r.UnitName(), f.StoredFileName)
}

// FileRef addresses one stored file by its location fields.
type FileRef struct {
	Subject        string   `json:"subject" form:"subject"`
	Category       Category `json:"category" form:"category"`
	Unit           string   `json:"unit" form:"unit"`
	StoredFileName string   `json:"storedFileName" form:"storedFileName"`
}

func (r FileRef) Key() string {
	return MetadataKey(r.Subject, r.Category, r.Unit, r.StoredFileName)
}
