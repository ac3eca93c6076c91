package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"

	"brandbook/backend/go/internal/rag_service/rag/ragerr"

	"github.com/minio/minio-go/v7"
)

// objectPrefix keeps uploads apart from anything else in a shared bucket.
const objectPrefix = "playbooks/"

// MinioStore writes uploads to a MinIO bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore uses an existing client. The bucket must already exist.
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket}
}

func (s *MinioStore) Put(ctx context.Context, documentID, filename, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, objectPrefix+documentID, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"filename": url.QueryEscape(filename)},
	})
	if err != nil {
		return fmt.Errorf("store file for %s: %w", documentID, err)
	}
	return nil
}

func (s *MinioStore) Get(ctx context.Context, documentID string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectPrefix+documentID, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.readErr(documentID, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.readErr(documentID, err)
	}
	return data, nil
}

func (s *MinioStore) Delete(ctx context.Context, documentID string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectPrefix+documentID, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("delete file for %s: %w", documentID, err)
	}
	return nil
}

func (s *MinioStore) readErr(documentID string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ragerr.Newf(ragerr.KindNotFound, "read file", "no stored file for %s", documentID)
	}
	return fmt.Errorf("read file for %s: %w", documentID, err)
}

var _ Store = (*MinioStore)(nil)
