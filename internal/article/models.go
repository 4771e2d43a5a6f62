package article

import (
	"encoding/json"
	"time"
)

// DefaultID is the well-known article that can never be deleted.
const DefaultID = "default"

// Article is the identity and metadata of one catalog.
type Article struct {
	ID        string    `json:"id" bson:"id"`
	Name      string    `json:"name" bson:"name"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Snapshot is one immutable persisted revision of an article's catalog.
type Snapshot struct {
	ArticleID string          `json:"articleId"`
	VersionID int64           `json:"versionId"`
	CreatedAt time.Time       `json:"createdAt"`
	Digest    string          `json:"digest"`
	Payload   json.RawMessage `json:"payload"`
}

// Version is the listing view of a snapshot.
type Version struct {
	VersionID int64     `json:"versionId"`
	CreatedAt time.Time `json:"createdAt"`
	Digest    string    `json:"digest"`
}

// Pointer names the snapshot currently considered latest. Schema is a cached
// projection of that snapshot and is never authoritative.
type Pointer struct {
	ArticleID string          `json:"articleId"`
	VersionID int64           `json:"versionId"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Schema    json.RawMessage `json:"schema,omitempty"`
}

// Catalog is the consumer-facing view of the latest snapshot.
type Catalog struct {
	ArticleID string          `json:"articleId"`
	VersionID int64           `json:"versionId"`
	CreatedAt time.Time       `json:"createdAt"`
	Payload   json.RawMessage `json:"catalog"`
	Schema    json.RawMessage `json:"schema"`
}

// Source is an external reference record a catalog may declare.
type Source struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// LookupOptions controls by-name resolution.
type LookupOptions struct {
	// FallbackAllWhenNoKeys returns every known source when the catalog
	// declares no source keys, instead of none.
	FallbackAllWhenNoKeys bool
}

// LookupResult is what a by-name lookup hands to downstream systems.
type LookupResult struct {
	Article Article  `json:"article"`
	Catalog *Catalog `json:"latest"`
	Sources []Source `json:"sources"`
}
