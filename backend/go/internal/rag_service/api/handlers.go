package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"brandbook/backend/go/internal/models"
	"brandbook/backend/go/internal/rag_service/rag/ragerr"
	"brandbook/backend/go/internal/rag_service/rag/schema"
	"brandbook/backend/go/internal/rag_service/service"

	"github.com/gin-gonic/gin"
)

// PlaybookService is what the handlers need from the service layer.
type PlaybookService interface {
	Upload(ctx context.Context, cred models.Credential, owner, filename string, data []byte) (*service.UploadResult, error)
	Ask(ctx context.Context, cred models.Credential, req service.AskRequest) (schema.Answer, error)
	List(ctx context.Context, owner string) ([]*models.RagDocument, error)
	Get(ctx context.Context, id string) (*models.RagDocument, error)
	Delete(ctx context.Context, owner, id string) error
	Summarize(ctx context.Context, cred models.Credential, userID, id string) (service.Summary, error)
	Health(ctx context.Context) service.HealthReport
	Stats(ctx context.Context) (service.Stats, error)
}

// Handler serves the /api/v1 endpoints.
type Handler struct {
	svc      PlaybookService
	maxBytes int64
}

// NewHandler creates a Handler. maxBytes bounds how much of an upload is read.
func NewHandler(svc PlaybookService, maxBytes int64) *Handler {
	return &Handler{svc: svc, maxBytes: maxBytes}
}

// credential reads the optional per-call provider key. It is passed down
// explicitly and never stored or logged.
func credential(c *gin.Context) models.Credential {
	return models.NewCredential(strings.TrimSpace(c.GetHeader(headerProviderKey)))
}

// UploadPlaybook handles POST /playbooks with a multipart "file" field.
func (h *Handler) UploadPlaybook(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, ragerr.Newf(ragerr.KindInvalidInput, "upload", "multipart field \"file\" is required"))
		return
	}
	if h.maxBytes > 0 && fh.Size > h.maxBytes {
		writeError(c, ragerr.Newf(ragerr.KindInvalidInput, "upload", "file is %d bytes, the limit is %d", fh.Size, h.maxBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, ragerr.New(ragerr.KindInvalidInput, "upload", err))
		return
	}
	defer f.Close()

	var r io.Reader = f
	if h.maxBytes > 0 {
		r = io.LimitReader(f, h.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		writeError(c, ragerr.New(ragerr.KindInvalidInput, "upload", err))
		return
	}

	res, err := h.svc.Upload(c.Request.Context(), credential(c), c.GetString(ctxUserID), fh.Filename, data)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"playbook_id": res.Document.ID,
		"filename":    res.Document.Filename,
		"chunk_count": res.Document.ChunkCount,
		"status":      "success",
		"message":     fmt.Sprintf("Successfully processed %s", res.Document.Filename),
		"tokens_used": res.Usage.Total(),
	})
}

// ListPlaybooks handles GET /playbooks. ?mine=true limits the list to the caller's uploads.
func (h *Handler) ListPlaybooks(c *gin.Context) {
	owner := ""
	if c.Query("mine") == "true" {
		owner = c.GetString(ctxUserID)
	}
	docs, err := h.svc.List(c.Request.Context(), owner)
	if err != nil {
		writeError(c, err)
		return
	}
	if docs == nil {
		docs = []*models.RagDocument{}
	}
	c.JSON(http.StatusOK, gin.H{"playbooks": docs})
}

// GetPlaybook handles GET /playbooks/:id.
func (h *Handler) GetPlaybook(c *gin.Context) {
	doc, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeletePlaybook handles DELETE /playbooks/:id.
func (h *Handler) DeletePlaybook(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.Delete(c.Request.Context(), c.GetString(ctxUserID), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Playbook deleted", "playbook_id": id})
}

// SummarizePlaybook handles GET /playbooks/:id/summary.
func (h *Handler) SummarizePlaybook(c *gin.Context) {
	sum, err := h.svc.Summarize(c.Request.Context(), credential(c), c.GetString(ctxUserID), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type turnRequest struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type askRequest struct {
	Question            string        `json:"question" binding:"required"`
	PlaybookID          string        `json:"playbook_id"`
	ConversationHistory []turnRequest `json:"conversation_history"`
	SessionID           string        `json:"session_id"`
	TopK                int           `json:"top_k" binding:"omitempty,min=1,max=20"`
	FollowUps           bool          `json:"follow_ups"`
}

type passageResponse struct {
	ChunkID     string  `json:"chunk_id"`
	PlaybookID  string  `json:"playbook_id"`
	Content     string  `json:"content"`
	Highlighted string  `json:"highlighted_text"`
	PageNumber  int     `json:"page_number,omitempty"`
	ChunkType   string  `json:"chunk_type"`
	Score       float64 `json:"score"`
}

type askResponse struct {
	Answer     string            `json:"answer"`
	Confidence float64           `json:"confidence"`
	Passages   []passageResponse `json:"passages"`
	FollowUps  []string          `json:"follow_up_questions"`
	TokensUsed int               `json:"tokens_used"`
	Usage      models.TokenUsage `json:"usage"`
	NoEvidence bool              `json:"no_evidence"`
}

// Ask handles POST /ask.
func (h *Handler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, ragerr.New(ragerr.KindInvalidInput, "ask", err))
		return
	}
	history := make([]schema.ConversationTurn, 0, len(req.ConversationHistory))
	for i, t := range req.ConversationHistory {
		role := schema.Role(strings.ToLower(t.Role))
		if role != schema.RoleUser && role != schema.RoleAssistant {
			writeError(c, ragerr.Newf(ragerr.KindInvalidInput, "ask", "conversation_history[%d].role must be user or assistant", i))
			return
		}
		history = append(history, schema.ConversationTurn{Role: role, Content: t.Content, Timestamp: t.Timestamp})
	}

	answer, err := h.svc.Ask(c.Request.Context(), credential(c), service.AskRequest{
		Question:   req.Question,
		DocumentID: req.PlaybookID,
		History:    history,
		SessionID:  req.SessionID,
		TopK:       req.TopK,
		FollowUps:  req.FollowUps,
		UserID:     c.GetString(ctxUserID),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	resp := askResponse{
		Answer:     answer.Text,
		Confidence: answer.Confidence,
		Passages:   make([]passageResponse, 0, len(answer.Passages)),
		FollowUps:  answer.FollowUps,
		TokensUsed: answer.Usage.Total(),
		Usage:      answer.Usage,
		NoEvidence: answer.NoEvidence,
	}
	if resp.FollowUps == nil {
		resp.FollowUps = []string{}
	}
	for _, p := range answer.Passages {
		resp.Passages = append(resp.Passages, passageResponse{
			ChunkID:     p.ID,
			PlaybookID:  p.DocumentID,
			Content:     p.Text,
			Highlighted: p.Highlighted,
			PageNumber:  p.Locator,
			ChunkType:   string(p.Kind),
			Score:       p.Score,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// Health handles GET /health. A degraded dependency turns the status code into 503.
func (h *Handler) Health(c *gin.Context) {
	report := h.svc.Health(c.Request.Context())
	status := http.StatusOK
	if report.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Stats handles GET /stats.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
