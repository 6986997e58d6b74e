package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentCategory string

const (
	CategoryPersonal    DocumentCategory = "personal"
	CategoryEducational DocumentCategory = "educational"
)

func ParseDocumentCategory(s string) (DocumentCategory, error) {
	switch DocumentCategory(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryPersonal:
		return CategoryPersonal, nil
	case CategoryEducational:
		return CategoryEducational, nil
	}
	return "", fmt.Errorf("unknown document category %q", s)
}

// Fields lists the keys every extraction of this category carries.
func (c DocumentCategory) Fields() []string {
	switch c {
	case CategoryPersonal:
		return []string{"name", "dob", "address", "mobile"}
	case CategoryEducational:
		return []string{
			"name", "dob", "document_type", "qualification", "board",
			"stream", "year_of_passing", "school_name", "marks_type", "marks",
		}
	}
	return nil
}

type ExtractionRequest struct {
	RawText  string
	Category DocumentCategory
}

// ExtractedFields maps a field name to its value. A nil value means the
// field is known to be absent from the document.
type ExtractedFields map[string]*string

func (f ExtractedFields) Get(key string) (string, bool) {
	v, ok := f[key]
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

func (f ExtractedFields) Value(key string) string {
	v, _ := f.Get(key)
	return v
}

func (f ExtractedFields) Set(key, value string) {
	f[key] = &value
}

// Plain converts the fields to a JSON-friendly map with nil for nulls.
func (f ExtractedFields) Plain() map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	return out
}

func StringPtr(s string) *string {
	return &s
}

// DocumentState is one stored extraction for a worker.
type DocumentState struct {
	// DocumentID is the educational_documents row id; zero for personal.
	DocumentID   int64
	DocumentPath string
	Present      bool
	Fields       ExtractedFields
	RawOCRText   string
	AuditJSON    string
	ExtractedAt  time.Time
}
