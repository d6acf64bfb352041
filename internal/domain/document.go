package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies how a document's raw bytes were normalized
type SourceType string

const (
	SourceTypeText     SourceType = "text"
	SourceTypeMarkdown SourceType = "markdown"
	SourceTypePDF      SourceType = "pdf"
	SourceTypeTabular  SourceType = "tabular"
)

// IsValid returns true if the source type is valid
func (s SourceType) IsValid() bool {
	switch s {
	case SourceTypeText, SourceTypeMarkdown, SourceTypePDF, SourceTypeTabular:
		return true
	}
	return false
}

// Document is the unit of ingestion. Version bumps only when normalized content changes.
type Document struct {
	ID             string
	OrgID          string
	Title          string
	Source         string
	SourceType     SourceType
	Classification Classification
	Retention      string
	ExpiresAt      *time.Time
	Tags           []string
	ContentSHA256  string
	ContentBytes   int64
	NumChunks      int
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the document's retention window has elapsed at now.
func (d *Document) IsExpired(now time.Time) bool {
	return d.ExpiresAt != nil && !d.ExpiresAt.After(now)
}

// VisibleTo reports whether the document falls inside the caller's scope at now.
func (d *Document) VisibleTo(scope AccessScope, now time.Time) bool {
	if d.OrgID != scope.OrgID {
		return false
	}
	if !scope.Clearance.Allows(d.Classification) {
		return false
	}
	return !d.IsExpired(now)
}

// MetadataEquals compares the governance and descriptive fields that can change without a version bump.
func (d *Document) MetadataEquals(other *Document) bool {
	if d.Title != other.Title || d.Source != other.Source ||
		d.Classification != other.Classification || d.Retention != other.Retention {
		return false
	}
	if len(d.Tags) != len(other.Tags) {
		return false
	}
	for i := range d.Tags {
		if d.Tags[i] != other.Tags[i] {
			return false
		}
	}
	return true
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return NewValidationError("doc_id is required")
	}
	if len(d.ID) > 256 {
		return NewValidationError("doc_id must be at most 256 characters")
	}
	if d.OrgID == "" {
		return NewValidationError("org_id is required")
	}
	if d.Title == "" {
		return NewValidationError("title is required")
	}
	if d.Source == "" {
		return NewValidationError("source is required")
	}
	if !d.SourceType.IsValid() {
		return NewValidationError("invalid source type %q", d.SourceType)
	}
	if !d.Classification.IsValid() {
		return NewValidationError("invalid classification %q", d.Classification)
	}
	return nil
}

// DocumentID derives a stable doc_id for callers that do not supply one, so the same
// source ingested twice by one organization lands on the same document.
func DocumentID(orgID, source string) string {
	return uuid.NewSHA1(chunkNamespace, []byte("doc:"+orgID+":"+source)).String()
}

// AccessScope is what a caller may read: one organization up to a clearance level.
type AccessScope struct {
	OrgID     string
	Clearance Classification
}

// Key renders the scope for cache keys and logs.
func (s AccessScope) Key() string {
	return s.OrgID + "/" + string(s.Clearance)
}

// DocumentSource is the last raw input accepted for a document, kept so replay can
// re-run ingestion from the original bytes.
type DocumentSource struct {
	DocID       string
	Data        []byte
	Filename    string
	ContentType string
	Contract    []byte
	UpdatedAt   time.Time
}
