package schema

import (
	"time"

	"brandbook/backend/go/internal/models"
)

// Metadata keys stored alongside each chunk by the vector backends.
const (
	MetadataKeyDocumentID = "document_id"
	MetadataKeySequence   = "sequence"
	MetadataKeyKind       = "kind"
	MetadataKeyLocator    = "locator"
)

// UnitKind tags a structural region of an extracted document.
type UnitKind string

const (
	KindText      UnitKind = "text"
	KindTable     UnitKind = "table"
	KindSlideNote UnitKind = "slide_note"
	KindTitle     UnitKind = "title"
)

// StructuralUnit is one region reported by a text extractor. Locator is the
// 1-based page, slide or sheet number the region came from (0 when unknown).
type StructuralUnit struct {
	Kind    UnitKind
	Locator int
	Text    string
	// Rows holds the cells of a table unit. Text is the rendered form.
	Rows [][]string
}

// Extraction is the output of a text extractor: the full text plus its structure.
type Extraction struct {
	Text  string
	Units []StructuralUnit
}

// Chunk is the unit of embedding and retrieval. It belongs to exactly one document.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Text       string    `json:"text"`
	Kind       UnitKind  `json:"kind"`
	Locator    int       `json:"locator"`
	Sequence   int       `json:"sequence"`
	Embedding  []float32 `json:"-"`
}

// ScoredChunk is a vector index hit. Score is a similarity in [0,1], 1 meaning identical.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievedPassage is a read-only projection of one or more adjacent chunks,
// constructed per query and never persisted.
type RetrievedPassage struct {
	Chunk
	Score float64 `json:"score"`
	// Sequences lists the chunk sequence indexes merged into this passage.
	Sequences   []int  `json:"sequences"`
	Highlighted string `json:"highlighted_text,omitempty"`
}

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one message of a conversation.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Answer is the result of answer synthesis.
type Answer struct {
	Text       string             `json:"answer"`
	Confidence float64            `json:"confidence"`
	Passages   []RetrievedPassage `json:"passages"`
	FollowUps  []string           `json:"follow_up_questions"`
	Usage      models.TokenUsage  `json:"usage"`
	// NoEvidence is set when retrieval found nothing above the relevance threshold.
	NoEvidence bool `json:"no_evidence"`
	// Incomplete is the model's own report that the passages did not fully answer the question.
	Incomplete bool `json:"incomplete"`
	// Malformed is set when the model output could not be parsed and Text is the raw output.
	Malformed bool `json:"-"`
}
