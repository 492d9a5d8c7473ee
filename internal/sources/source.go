// Package sources provides clients for searching external discovery
// services and a registry that fans searches out across them.
//
// Each discovery service (arXiv, ChinaXiv) implements the Source interface
// and returns normalized, validated domain.Record values; everything past
// this boundary works with typed records only.
package sources

import (
	"context"
	"time"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// SearchParams defines the parameters for a discovery search. Only Query is
// required.
type SearchParams struct {
	// Query is the search query string. Sources map it onto their own
	// query syntax.
	Query string

	// Categories restricts the search to source-specific subject
	// categories (e.g. "cs.AI" on arXiv). Ignored by sources without
	// category support.
	Categories []string

	// DateFrom filters records published on or after this date.
	DateFrom *time.Time

	// DateTo filters records published on or before this date.
	DateTo *time.Time

	// MaxResults limits the number of records returned. Zero uses the
	// source default.
	MaxResults int
}

// Source is a discovery service client.
type Source interface {
	// Search queries the service and returns normalized records. Records
	// failing domain validation are dropped at this boundary, not passed on.
	Search(ctx context.Context, params SearchParams) ([]*domain.Record, error)

	// SourceType returns this source's type tag.
	SourceType() domain.SourceType

	// Name returns a human-readable source name for logging.
	Name() string

	// IsEnabled reports whether the source is configured for use.
	IsEnabled() bool
}
