// Package registry keeps the catalogue of uploaded playbooks: who uploaded what,
// how many chunks it produced and its cached synopsis.
package registry

import (
	"context"
	"time"

	"brandbook/backend/go/internal/models"
)

// Store persists document records. An empty owner means "any owner" for Get,
// List and Delete; a non-empty owner only sees its own documents.
// Get and Delete return a not_found error for unknown ids.
type Store interface {
	Create(ctx context.Context, doc *models.RagDocument) error
	Get(ctx context.Context, owner, id string) (*models.RagDocument, error)
	// List returns the owner's documents, newest first.
	List(ctx context.Context, owner string) ([]*models.RagDocument, error)
	UpdateChunkCount(ctx context.Context, id string, count int) error
	SetSummary(ctx context.Context, id, summary string, at time.Time) error
	Delete(ctx context.Context, owner, id string) error
	Count(ctx context.Context) (int, error)
}
