package service

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/pipeline"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const maxStemRunes = 100

var unsafeFilenameChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.-]`)

// SanitizeFilename drops any directory part and every character that is not a
// letter, digit, underscore, space, dot or hyphen, then caps the stem at 100 runes.
func SanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if utf8.RuneCountInString(stem) > maxStemRunes {
		stem = string([]rune(stem)[:maxStemRunes])
	}
	return stem + ext
}

// UploadResult is the outcome of a successful upload.
type UploadResult struct {
	Document *models.RagDocument
	Usage    models.TokenUsage
}

// Upload validates, stores, extracts and indexes a playbook. It is all-or-nothing:
// on any failure after the registry row was created the row, the stored file and
// every indexed chunk are removed before the error is returned.
func (s *Service) Upload(ctx context.Context, cred models.Credential, owner, filename string, data []byte) (*UploadResult, error) {
	name, fileType, err := s.validateUpload(filename, data)
	if err != nil {
		return nil, err
	}

	doc := &models.RagDocument{
		ID:         uuid.NewString(),
		Filename:   name,
		FileType:   fileType,
		FileSize:   int64(len(data)),
		UploadedBy: owner,
		CreatedAt:  s.now().UTC(),
	}
	log := s.log.WithFields(map[string]interface{}{"document_id": doc.ID, "user_id": owner})
	log.Info(fmt.Sprintf("Uploading %s (%d bytes)", name, len(data)))

	if err := s.deps.Registry.Create(ctx, doc); err != nil {
		return nil, err
	}

	if err := s.deps.Files.Put(ctx, doc.ID, name, mimetype.Detect(data).String(), data); err != nil {
		log.Error(fmt.Sprintf("Failed to store file: %v", err))
		return nil, s.discard(ctx, doc.ID, err)
	}

	ext, err := s.deps.Extractor.Extract(ctx, data, fileType)
	if err != nil {
		log.Warn(fmt.Sprintf("Extraction failed: %v", err))
		return nil, s.discard(ctx, doc.ID, err)
	}

	progress := func(p pipeline.Progress) {
		log.Debug(fmt.Sprintf("%s (%d%%)", p.Message, p.Percent))
	}
	n, spent, err := s.deps.Indexer.Ingest(ctx, cred, doc.ID, ext, progress)
	s.record(ctx, models.UsageEvent{
		Operation:  models.OperationIngest,
		DocumentID: doc.ID,
		UserID:     owner,
		Provider:   s.deps.Embedding.Provider,
		Model:      s.deps.Embedding.Model,
		Usage:      spent,
	}, err)
	if err != nil {
		return nil, s.discard(ctx, doc.ID, err)
	}

	if err := s.deps.Registry.UpdateChunkCount(ctx, doc.ID, n); err != nil {
		return nil, s.discard(ctx, doc.ID, err)
	}
	doc.ChunkCount = n
	log.Info(fmt.Sprintf("Indexed %s into %d chunks", name, n))
	return &UploadResult{Document: doc, Usage: spent}, nil
}

func (s *Service) validateUpload(filename string, data []byte) (string, string, error) {
	name := SanitizeFilename(filename)
	fileType := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	switch {
	case strings.TrimSuffix(name, path.Ext(name)) == "":
		return "", "", ragerr.Newf(ragerr.KindInvalidInput, "upload", "filename %q is empty after sanitizing", filename)
	case !s.allowed[fileType]:
		return "", "", ragerr.Newf(ragerr.KindInvalidInput, "upload", "file type %q is not allowed", fileType)
	case len(data) == 0:
		return "", "", ragerr.Newf(ragerr.KindInvalidInput, "upload", "file is empty")
	case s.opts.MaxBytes > 0 && int64(len(data)) > s.opts.MaxBytes:
		return "", "", ragerr.Newf(ragerr.KindInvalidInput, "upload", "file is %d bytes, the limit is %d", len(data), s.opts.MaxBytes)
	}
	return name, fileType, nil
}

// discard removes everything written for a failed upload and returns cause.
func (s *Service) discard(ctx context.Context, id string, cause error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	log := s.log.WithField("document_id", id)
	if err := s.deps.Indexer.Remove(cctx, id); err != nil {
		log.Error(fmt.Sprintf("Cleanup: failed to remove chunks: %v", err))
	}
	if err := s.deps.Files.Delete(cctx, id); err != nil {
		log.Error(fmt.Sprintf("Cleanup: failed to remove stored file: %v", err))
	}
	if err := s.deps.Registry.Delete(cctx, "", id); err != nil {
		log.Error(fmt.Sprintf("Cleanup: failed to remove registry row: %v", err))
	}
	return cause
}
