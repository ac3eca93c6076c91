package registry

import (
	"context"
	"fmt"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"

	"gorm.io/gorm"
)

// GormStore keeps documents in the rag_documents table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the table if needed.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&models.RagDocument{}); err != nil {
		return nil, fmt.Errorf("migrate rag_documents: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Create(ctx context.Context, doc *models.RagDocument) error {
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, owner, id string) (*models.RagDocument, error) {
	var doc models.RagDocument
	result := s.scoped(ctx, owner).Where("id = ?", id).Limit(1).Find(&doc)
	if result.Error != nil {
		return nil, fmt.Errorf("get document %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, notFound("get", id)
	}
	return &doc, nil
}

func (s *GormStore) List(ctx context.Context, owner string) ([]*models.RagDocument, error) {
	var docs []*models.RagDocument
	if err := s.scoped(ctx, owner).Order("created_at DESC").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (s *GormStore) UpdateChunkCount(ctx context.Context, id string, count int) error {
	return s.update(ctx, "update", id, map[string]interface{}{"chunk_count": count})
}

func (s *GormStore) SetSummary(ctx context.Context, id, summary string, at time.Time) error {
	return s.update(ctx, "set summary", id, map[string]interface{}{"summary": summary, "summary_at": at})
}

// Delete removes the document row. Only the owner may delete it.
func (s *GormStore) Delete(ctx context.Context, owner, id string) error {
	result := s.scoped(ctx, owner).Where("id = ?", id).Delete(&models.RagDocument{})
	if result.Error != nil {
		return fmt.Errorf("delete document %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound("delete", id)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.RagDocument{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return int(n), nil
}

func (s *GormStore) update(ctx context.Context, op, id string, columns map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.RagDocument{}).Where("id = ?", id).Updates(columns)
	if result.Error != nil {
		return fmt.Errorf("%s document %s: %w", op, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return notFound(op, id)
	}
	return nil
}

func (s *GormStore) scoped(ctx context.Context, owner string) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&models.RagDocument{})
	if owner != "" {
		tx = tx.Where("uploaded_by = ?", owner)
	}
	return tx
}

func notFound(op, id string) error {
	return ragerr.Newf(ragerr.KindNotFound, op, "document %s not found", id)
}

var _ Store = (*GormStore)(nil)
