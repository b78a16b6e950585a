package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"studyvault/internal/domain"
)

// Index is the flat metadata index: composite key -> display metadata.
type Index struct {
	entries map[string]domain.MetadataEntry
}

func NewIndex() *Index {
	return &Index{entries: map[string]domain.MetadataEntry{}}
}

func (ix *Index) Get(key string) (domain.MetadataEntry, bool) {
	e, ok := ix.entries[key]
	return e, ok
}

func (ix *Index) Set(key string, entry domain.MetadataEntry) {
	ix.entries[key] = entry
}

func (ix *Index) Delete(key string) {
	delete(ix.entries, key)
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

// Keys returns every key in sorted order.
func (ix *Index) Keys() []string {
	keys := make([]string, 0, len(ix.entries))
	for k := range ix.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// loadIndex reads the index document. A missing file yields an empty index;
// a corrupt one yields an empty index and a non-nil error for the caller to
// log.
func loadIndex(path string) (*Index, error) {
	ix := NewIndex()
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return ix, nil
	}
	if err != nil {
		return ix, fmt.Errorf("read metadata index: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ix, nil
	}
	if err := json.Unmarshal(raw, &ix.entries); err != nil {
		ix.entries = map[string]domain.MetadataEntry{}
		return ix, fmt.Errorf("decode metadata index: %w", err)
	}
	if ix.entries == nil {
		ix.entries = map[string]domain.MetadataEntry{}
	}
	return ix, nil
}

// encode renders the index document. Map keys are emitted sorted, so equal
// indexes always encode to equal bytes.
func (ix *Index) encode() ([]byte, error) {
	return json.MarshalIndent(ix.entries, "", "  ")
}

// timestampSuffix matches a 13-digit millisecond stamp that follows a
// non-digit. Longer digit runs and bare stamps are left alone.
var timestampSuffix = regexp.MustCompile(`\D([_-]?\d{13})$`)

// DisplayTitle synthesizes a title for a stored file that has no index
// entry: "Intro_To_Sets_1700000000123.pdf" becomes "Intro To Sets".
func DisplayTitle(storedFileName string) string {
	name := storedFileName
	if ext := extOf(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	if m := timestampSuffix.FindStringSubmatchIndex(name); m != nil {
		name = strings.TrimRight(name[:m[2]], "_-")
	}
	name = strings.ReplaceAll(name, "_", " ")

	words := strings.Fields(name)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}
