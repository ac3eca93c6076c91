package models

import "time"

// RagDocument 是一份已上传的品牌手册在文档注册表中的记录。
// 创建后除 ChunkCount 和摘要缓存外不再修改；删除时级联删除它的所有分块。
type RagDocument struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	Filename   string     `gorm:"not null;size:255" json:"filename"`
	FileType   string     `gorm:"not null;size:16" json:"file_type"`
	FileSize   int64      `json:"file_size"`
	UploadedBy string     `gorm:"index;not null;size:255" json:"uploaded_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ChunkCount int        `json:"chunk_count"`
	Summary    string     `gorm:"type:text" json:"-"`
	SummaryAt  *time.Time `json:"summary_at,omitempty"`
}

// TableName 固定表名。
func (RagDocument) TableName() string {
	return "rag_documents"
}
