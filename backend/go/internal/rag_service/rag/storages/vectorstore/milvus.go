package vectorstore

import (
	"context"
	"fmt"
	"unicode/utf8"

	"brandbook/backend/go/internal/database/milvus"
	"brandbook/backend/go/internal/rag_service/rag/interfaces"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/pkg/logger"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// Schema fields of the chunk collection.
	FieldID         = "id"
	FieldDocumentID = schema.MetadataKeyDocumentID
	FieldSequence   = schema.MetadataKeySequence
	FieldKind       = schema.MetadataKeyKind
	FieldLocator    = schema.MetadataKeyLocator
	FieldText       = "text"
	FieldEmbedding  = "embedding"

	maxTextLength = 65535
	chunkPageSize = 1000
)

var milvusOutputFields = []string{FieldID, FieldDocumentID, FieldSequence, FieldKind, FieldLocator, FieldText}

// MilvusStore keeps chunks in a Milvus collection indexed with the COSINE metric.
// Milvus needs the vector dimension when the collection is created, so it is fixed
// by configuration.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	mc         *milvus.MilvusClient
	collection string
	dim        int
}

// NewMilvusStore ensures the collection exists and is loaded.
func NewMilvusStore(ctx context.Context, milvusClient *milvus.MilvusClient, collectionName string, dimension int) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("milvus backend needs vectorIndex.dimension")
	}
	s := &MilvusStore{
		log:        logger.New("VectorIndex", "", ""),
		client:     milvusClient.Client,
		mc:         milvusClient,
		collection: collectionName,
		dim:        dimension,
	}
	if err := milvusClient.EnsureCollection(ctx, s.schema(), FieldEmbedding); err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "open", err)
	}
	return s, nil
}

func (s *MilvusStore) schema() *entity.Schema {
	return entity.NewSchema().
		WithName(s.collection).
		WithDescription("brand playbook chunks").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldDocumentID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
		WithField(entity.NewField().WithName(FieldSequence).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldKind).WithDataType(entity.FieldTypeVarChar).WithMaxLength(32)).
		WithField(entity.NewField().WithName(FieldLocator).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLength)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(s.dim)))
}

func (s *MilvusStore) Backend() string { return BackendMilvus }

// Upsert writes the chunks in one Milvus upsert call.
func (s *MilvusStore) Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error {
	if _, err := checkChunks("upsert", s.dim, documentID, chunks); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	n := len(chunks)
	ids := make([]string, n)
	docIDs := make([]string, n)
	seqs := make([]int64, n)
	kinds := make([]string, n)
	locs := make([]int64, n)
	texts := make([]string, n)
	vectors := make([][]float32, n)
	for i, c := range chunks {
		ids[i] = c.ID
		docIDs[i] = documentID
		seqs[i] = int64(c.Sequence)
		kinds[i] = string(c.Kind)
		locs[i] = int64(c.Locator)
		texts[i] = truncateBytes(c.Text, maxTextLength)
		vectors[i] = c.Embedding
	}

	s.log.Info(fmt.Sprintf("Upserting %d chunks of document %s into Milvus collection: %s", n, documentID, s.collection))
	_, err := s.client.Upsert(ctx, s.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnVarChar(FieldDocumentID, docIDs),
		entity.NewColumnInt64(FieldSequence, seqs),
		entity.NewColumnVarChar(FieldKind, kinds),
		entity.NewColumnInt64(FieldLocator, locs),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnFloatVector(FieldEmbedding, s.dim, vectors),
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to upsert data into Milvus: %v", err))
		return ragerr.New(ragerr.KindIndexUnavailable, "upsert", fmt.Errorf("failed to upsert data into Milvus: %w", err))
	}
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, k int, documentID string) ([]schema.ScoredChunk, error) {
	if err := checkQuery("search", s.dim, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	sp, err := s.mc.SearchParam()
	if err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "search", err)
	}

	expr := documentFilter(documentID)
	s.log.Debug(fmt.Sprintf("Querying Milvus collection '%s' with filter: '%s'", s.collection, expr))
	results, err := s.client.Search(
		ctx, s.collection, nil, expr, milvusOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		FieldEmbedding, entity.COSINE, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		s.log.Error(fmt.Sprintf("Failed to search in Milvus: %v", err))
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "search", fmt.Errorf("failed to search in Milvus: %w", err))
	}

	var hits []schema.ScoredChunk
	for _, res := range results {
		chunks := chunksFromColumns(res.Fields, res.ResultCount)
		for i, c := range chunks {
			hits = append(hits, schema.ScoredChunk{Chunk: c, Score: similarity(float64(res.Scores[i]))})
		}
	}
	sortHits(hits)
	return hits, nil
}

func (s *MilvusStore) Delete(ctx context.Context, documentID string) error {
	if documentID == "" {
		return nil
	}
	if err := s.client.Delete(ctx, s.collection, "", documentFilter(documentID)); err != nil {
		return ragerr.New(ragerr.KindIndexUnavailable, "delete", fmt.Errorf("failed to delete data from Milvus: %w", err))
	}
	return nil
}

// Chunks reads the document a window of sequence numbers at a time. A single
// Milvus query returns at most 16384 rows, and offset paging is bound by the same window.
func (s *MilvusStore) Chunks(ctx context.Context, documentID string) ([]schema.Chunk, error) {
	if documentID == "" {
		return nil, nil
	}
	out, err := pageChunks(chunkPageSize, func(from int) ([]schema.Chunk, error) {
		rs, err := s.client.Query(ctx, s.collection, nil, sequenceWindowFilter(documentID, from, chunkPageSize), milvusOutputFields,
			client.WithLimit(chunkPageSize),
			client.WithSearchQueryConsistencyLevel(entity.ClStrong))
		if err != nil {
			return nil, err
		}
		n := 0
		if col := rs.GetColumn(FieldID); col != nil {
			n = col.Len()
		}
		return chunksFromColumns(rs, n), nil
	})
	if err != nil {
		return nil, ragerr.New(ragerr.KindIndexUnavailable, "chunks", fmt.Errorf("failed to query Milvus: %w", err))
	}
	sortBySequence(out)
	return out, nil
}

// pageChunks calls fetch with successive sequence offsets until a page comes back short.
// Sequences of one document are contiguous from 0, so a short page is the last one.
func pageChunks(size int, fetch func(from int) ([]schema.Chunk, error)) ([]schema.Chunk, error) {
	var out []schema.Chunk
	for from := 0; ; from += size {
		page, err := fetch(from)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < size {
			return out, nil
		}
	}
}

func sequenceWindowFilter(documentID string, from, size int) string {
	return fmt.Sprintf("%s && %s >= %d && %s < %d", documentFilter(documentID), FieldSequence, from, FieldSequence, from+size)
}

func (s *MilvusStore) Count(ctx context.Context) (int, error) {
	rs, err := s.client.Query(ctx, s.collection, nil, "", []string{"count(*)"},
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return 0, ragerr.New(ragerr.KindIndexUnavailable, "count", err)
	}
	if col, ok := rs.GetColumn("count(*)").(*entity.ColumnInt64); ok && col.Len() > 0 {
		return int(col.Data()[0]), nil
	}
	return 0, nil
}

func documentFilter(documentID string) string {
	if documentID == "" {
		return ""
	}
	return fmt.Sprintf("%s == %q", FieldDocumentID, documentID)
}

func chunksFromColumns(rs client.ResultSet, n int) []schema.Chunk {
	strs := func(name string) []string {
		if col, ok := rs.GetColumn(name).(*entity.ColumnVarChar); ok {
			return col.Data()
		}
		return nil
	}
	ints := func(name string) []int64 {
		if col, ok := rs.GetColumn(name).(*entity.ColumnInt64); ok {
			return col.Data()
		}
		return nil
	}
	ids, docs, kinds, texts := strs(FieldID), strs(FieldDocumentID), strs(FieldKind), strs(FieldText)
	seqs, locs := ints(FieldSequence), ints(FieldLocator)
	if len(ids) < n {
		n = len(ids)
	}

	out := make([]schema.Chunk, 0, n)
	for i := 0; i < n; i++ {
		c := schema.Chunk{ID: ids[i]}
		if i < len(docs) {
			c.DocumentID = docs[i]
		}
		if i < len(kinds) {
			c.Kind = schema.UnitKind(kinds[i])
		}
		if i < len(texts) {
			c.Text = texts[i]
		}
		if i < len(seqs) {
			c.Sequence = int(seqs[i])
		}
		if i < len(locs) {
			c.Locator = int(locs[i])
		}
		out = append(out, c)
	}
	return out
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

var _ interfaces.VectorIndex = (*MilvusStore)(nil)
