// Package bibstore defines the remote bibliography store interface and the
// request gate (rate limiter + retry policy) every store call passes through.
package bibstore

import (
	"context"

	"github.com/GhUserLiu/paperflow/internal/domain"
)

// Item is one remote store entry as seen by duplicate scans: its store key
// plus the identifier-bearing data fields.
type Item struct {
	Key    string
	Fields map[string]string
}

// Collection is a remote sub-collection.
type Collection struct {
	Key  string
	Name string
}

// Scope restricts a listing to one sub-collection. The zero Scope means the
// whole library.
type Scope struct {
	Collection string
}

// Global reports whether the scope covers the whole library.
func (s Scope) Global() bool {
	return s.Collection == ""
}

// Store is the remote bibliography store. Implementations are opaque network
// services; everything in this package treats them as such.
type Store interface {
	// CreateItem writes one record as a new item and returns its store key.
	CreateItem(ctx context.Context, rec *domain.Record) (string, error)

	// ListRecent returns up to limit items in reverse order of addition,
	// optionally scoped to one collection.
	ListRecent(ctx context.Context, scope Scope, limit int) ([]Item, error)

	// AddToCollection adds an existing item to a collection.
	AddToCollection(ctx context.Context, itemKey, collectionKey string) error

	// UploadAttachment attaches a file to an existing item.
	UploadAttachment(ctx context.Context, itemKey, filename string, data []byte) error

	// ListCollections returns the library's collections.
	ListCollections(ctx context.Context) ([]Collection, error)
}
