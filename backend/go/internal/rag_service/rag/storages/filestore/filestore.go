// Package filestore keeps the original bytes of uploaded playbooks, one object
// per document id.
package filestore

import "context"

// Store saves and removes uploaded files. Delete of an absent object is a no-op;
// Get of an absent object is a not_found error.
type Store interface {
	Put(ctx context.Context, documentID, filename, contentType string, data []byte) error
	Get(ctx context.Context, documentID string) ([]byte, error)
	Delete(ctx context.Context, documentID string) error
}
