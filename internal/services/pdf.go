package services

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"studyvault/internal/domain"
)

var categoryTitles = map[domain.Category]string{
	domain.CategoryNotes:         "Notes",
	domain.CategoryPracticeTests: "Practice tests",
	domain.CategoryPracticals:    "Practicals",
	domain.CategoryAssignments:   "Assignments",
}

type PDFService struct {
	now func() time.Time
}

func NewPDFService() *PDFService {
	return &PDFService{now: time.Now}
}

// GenerateCatalog renders the list of a subject's files, grouped by
// category and, for notes, by unit.
func (s *PDFService) GenerateCatalog(subject domain.Subject, records []domain.Record, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(fmt.Sprintf("%s catalogue", subject.Name)), false)
	pdf.SetAuthor("studyvault", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, tr(subject.Name))
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, fmt.Sprintf("%d files, generated %s", len(records), s.now().Format("02/01/2006 15:04")))
	pdf.Ln(10)

	byCategory := map[domain.Category][]domain.Record{}
	for _, r := range records {
		byCategory[r.Category()] = append(byCategory[r.Category()], r)
	}

	for _, c := range domain.Categories {
		recs := byCategory[c]
		if len(recs) == 0 {
			continue
		}
		pdf.SetFont("Helvetica", "B", 14)
		pdf.Cell(0, 8, categoryTitles[c])
		pdf.Ln(10)

		if c != domain.CategoryNotes {
			s.writeRecords(pdf, tr, recs)
			pdf.Ln(4)
			continue
		}
		for _, unit := range unitOrder(subject, recs) {
			pdf.SetFont("Helvetica", "BI", 12)
			pdf.Cell(0, 7, tr(unit))
			pdf.Ln(8)
			var inUnit []domain.Record
			for _, r := range recs {
				if r.UnitName() == unit {
					inUnit = append(inUnit, r)
				}
			}
			s.writeRecords(pdf, tr, inUnit)
			pdf.Ln(2)
		}
		pdf.Ln(4)
	}

	if len(records) == 0 {
		pdf.SetFont("Helvetica", "I", 12)
		pdf.MultiCell(0, 6, "(no files)", "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func (s *PDFService) writeRecords(pdf *gofpdf.Fpdf, tr func(string) string, recs []domain.Record) {
	for _, r := range recs {
		f := r.File()
		pdf.SetFont("Helvetica", "", 11)
		line := fmt.Sprintf("- %s (%s, %s)", f.Title, f.OriginalFileName, f.FileSizeFormatted)
		pdf.MultiCell(0, 6, tr(line), "", "L", false)

		if d := strings.TrimSpace(f.Description); d != "" {
			pdf.SetFont("Helvetica", "I", 10)
			pdf.SetX(pdf.GetX() + 6)
			pdf.MultiCell(0, 5, tr(d), "", "L", false)
		}
	}
}

// unitOrder lists the subject's units first, then any unit only seen on a
// record.
func unitOrder(subject domain.Subject, recs []domain.Record) []string {
	seen := map[string]struct{}{}
	var units []string
	present := map[string]struct{}{}
	for _, r := range recs {
		present[r.UnitName()] = struct{}{}
	}
	for _, u := range subject.Units {
		if _, ok := present[u]; ok {
			seen[u] = struct{}{}
			units = append(units, u)
		}
	}
	for _, r := range recs {
		if _, ok := seen[r.UnitName()]; ok {
			continue
		}
		seen[r.UnitName()] = struct{}{}
		units = append(units, r.UnitName())
	}
	return units
}
