// Copyright 2025 Gerry Miller <gerry@gerrymiller.com>
//
// Licensed under the MIT License.
// See LICENSE file in the project root for full license information.

package vectorstore

import "context"

// Document is an embedded knowledge-base entry destined for a vector store.
type Document struct {
	// ID is the unique identifier for this document (UUID).
	ID string

	// Content is the text content of the document.
	Content string

	// Embedding is the vector representation.
	Embedding []float32

	// Metadata carries crawl provenance (source URL, run ID, crawl order).
	Metadata map[string]interface{}
}

// InsertRequest contains documents to upsert.
type InsertRequest struct {
	Documents      []Document
	CollectionName string
}

// InsertResponse reports the IDs that were written.
type InsertResponse struct {
	InsertedIDs []string
}

// Store is the interface vector-store backends implement. The crawl engine
// uses it as a write-side mirror of the embedded knowledge base; querying
// the mirror is a downstream concern.
type Store interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, name string, vectorDim int) error

	// Insert upserts documents into the store.
	Insert(ctx context.Context, req *InsertRequest) (*InsertResponse, error)

	// Close releases the underlying connection.
	Close() error
}

// Config contains configuration options for vector stores.
type Config struct {
	// Type selects the backend ("qdrant").
	Type string

	// Address of the server (e.g., "localhost:6334").
	Address string

	// APIKey for authentication (if required).
	APIKey string

	// DefaultCollection used when requests don't name one.
	DefaultCollection string

	// TimeoutSeconds bounds each request.
	TimeoutSeconds int
}
