// Package domain defines the core types shared across the ingestion pipeline.
package domain

import (
	"strings"
	"time"
)

// SourceType identifies a discovery source.
type SourceType string

// Known discovery sources.
const (
	SourceArxiv    SourceType = "arxiv"
	SourceChinaXiv SourceType = "chinaxiv"
)

// Identifier field names used by the remote bibliography store. ArchiveID
// values live in the archive-location field; DOIs in the DOI field.
const (
	FieldArchiveID = "archiveLocation"
	FieldDOI       = "DOI"
	FieldExtra     = "extra"
)

// IdentifierKey is the (field, value) pair used to test whether a record
// already exists in the remote store. Values are compared by exact string
// match after trimming whitespace.
type IdentifierKey struct {
	Field string
	Value string
}

// NewIdentifierKey builds a key with the value trimmed of surrounding
// whitespace.
func NewIdentifierKey(field, value string) IdentifierKey {
	return IdentifierKey{Field: field, Value: strings.TrimSpace(value)}
}

// IsZero reports whether the key carries no value.
func (k IdentifierKey) IsZero() bool {
	return k.Value == ""
}

// String renders the key as "field:value" for logging and cache accounting.
func (k IdentifierKey) String() string {
	return k.Field + ":" + k.Value
}

// Author represents a record author.
type Author struct {
	Name        string `json:"name"`
	Affiliation string `json:"affiliation,omitempty"`
}

// Record is a normalized discovery item. It is immutable once produced by a
// discovery source; the batch that contains it owns it until ingestion
// completes or fails.
type Record struct {
	// ArchiveID is the source-specific accession number (e.g. "2401.12345").
	ArchiveID string

	// DOI is the digital object identifier, if the source provides one.
	DOI string

	Title     string
	Abstract  string
	Authors   []Author
	Published *time.Time

	// Source tags which discovery source produced the record.
	Source SourceType

	// PDFURL points at the full-text PDF, if available.
	PDFURL string

	// Venue is the journal or conference name used for metrics lookup.
	Venue string

	// RawMetrics carries optional per-record metric inputs attached by the
	// metrics lookup before ranking. Nil when no metrics were resolved.
	RawMetrics map[string]float64
}

// Key returns the record's natural identifier key, preferring the accession
// number over the DOI. Returns a zero key when the record has neither,
// which callers must treat as "cannot be duplicate-checked".
func (r *Record) Key() IdentifierKey {
	if id := strings.TrimSpace(r.ArchiveID); id != "" {
		field := FieldArchiveID
		if r.Source == SourceChinaXiv {
			field = FieldExtra
		}
		return IdentifierKey{Field: field, Value: id}
	}
	if doi := strings.TrimSpace(r.DOI); doi != "" {
		return IdentifierKey{Field: FieldDOI, Value: doi}
	}
	return IdentifierKey{}
}

// Validate checks the invariants every record must satisfy before it enters
// the pipeline. Discovery sources call this once at the boundary.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return NewValidationError("title", "must not be empty")
	}
	if r.Source == "" {
		return NewValidationError("source", "must be set")
	}
	if r.Key().IsZero() {
		return NewValidationError("identifier", "record needs an accession number or DOI")
	}
	return nil
}
