package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/domain"
)

func TestGenerateCatalog(t *testing.T) {
	subject := domain.Subject{Name: "Mathématiques", Units: []string{"U2", "U1"}}
	records := []domain.Record{
		domain.Note{StoredFile: domain.StoredFile{Title: "Sets", OriginalFileName: "sets.pdf", Subject: subject.Name}, Unit: "U1"},
		domain.Note{StoredFile: domain.StoredFile{Title: "Limits", Description: "with exercises", Subject: subject.Name}, Unit: "U2"},
		domain.Assignment{StoredFile: domain.StoredFile{Title: "Homework 1", Subject: subject.Name}},
	}

	var buf bytes.Buffer
	require.NoError(t, NewPDFService().GenerateCatalog(subject, records, &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestGenerateCatalogEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPDFService().GenerateCatalog(domain.Subject{Name: "Art"}, nil, &buf))
	assert.NotZero(t, buf.Len())
}

func TestUnitOrder(t *testing.T) {
	subject := domain.Subject{Units: []string{"U2", "U1", "U3"}}
	recs := []domain.Record{
		domain.Note{Unit: "U1"},
		domain.Note{Unit: "Extra"},
		domain.Note{Unit: "U2"},
		domain.Note{Unit: "U1"},
	}
	assert.Equal(t, []string{"U2", "U1", "Extra"}, unitOrder(subject, recs))
}
