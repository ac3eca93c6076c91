package splitters

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"brandbook/backend/go/internal/rag_service/rag/schema"

	"github.com/google/uuid"
)

// Options bounds chunk sizes. Sizes are measured in tokens as reported by Count.
type Options struct {
	TargetTokens  int
	OverlapTokens int
	MinTokens     int
	MaxTokens     int
	// Count returns the token cost of one word. nil counts every word as one token.
	Count func(word string) int
}

// StructuralSplitter implements interfaces.Chunker. It walks the structural units of
// an extraction, cuts text at the target size or at page/slide boundaries, carries a
// trailing overlap into the next chunk and emits tables as chunks of their own.
type StructuralSplitter struct {
	opts Options
}

// NewStructuralSplitter creates a StructuralSplitter, filling zero options with defaults.
func NewStructuralSplitter(opts Options) *StructuralSplitter {
	if opts.TargetTokens <= 0 {
		opts.TargetTokens = 500
	}
	if opts.OverlapTokens < 0 || opts.OverlapTokens >= opts.TargetTokens {
		opts.OverlapTokens = opts.TargetTokens / 10
	}
	if opts.MaxTokens < opts.TargetTokens {
		opts.MaxTokens = opts.TargetTokens
	}
	if opts.MinTokens < 0 {
		opts.MinTokens = 0
	}
	if opts.Count == nil {
		opts.Count = func(string) int { return 1 }
	}
	return &StructuralSplitter{opts: opts}
}

// ChunkID derives a stable chunk id, so re-ingesting a document replaces its chunks.
func ChunkID(documentID string, sequence int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("brandbook:%s#%d", documentID, sequence))).String()
}

// Chunk splits ext into ordered chunks owned by documentID. Empty input yields no chunks.
func (s *StructuralSplitter) Chunk(documentID string, ext schema.Extraction) []schema.Chunk {
	units := ext.Units
	if len(units) == 0 {
		if strings.TrimSpace(ext.Text) == "" {
			return nil
		}
		units = []schema.StructuralUnit{{Kind: schema.KindText, Text: ext.Text}}
	}

	b := &builder{opts: s.opts, documentID: documentID, lastText: -1}
	for _, u := range units {
		if u.Kind == schema.KindTable {
			b.flush()
			b.table(u)
			continue
		}
		kind := textKind(u.Kind)
		words := strings.Fields(u.Text)
		if len(words) == 0 {
			continue
		}
		if b.fresh() > 0 && (u.Locator != b.locator || kind != b.kind) {
			b.boundary()
		}
		for _, w := range words {
			for _, piece := range s.split(w) {
				b.add(piece, u.Locator, kind)
			}
		}
	}
	b.flush()
	return b.chunks
}

// split force-splits a single word whose cost exceeds MaxTokens.
func (s *StructuralSplitter) split(w string) []word {
	cost := s.opts.Count(w)
	if cost <= s.opts.MaxTokens {
		return []word{{text: w, cost: cost}}
	}
	parts := (cost + s.opts.MaxTokens - 1) / s.opts.MaxTokens
	runes := []rune(w)
	size := (len(runes) + parts - 1) / parts
	var out []word
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		piece := string(runes[start:end])
		out = append(out, word{text: piece, cost: s.opts.Count(piece)})
	}
	return out
}

func textKind(k schema.UnitKind) schema.UnitKind {
	if k == schema.KindSlideNote {
		return schema.KindSlideNote
	}
	return schema.KindText
}

type word struct {
	text string
	cost int
}

type builder struct {
	opts       Options
	documentID string
	chunks     []schema.Chunk

	buf     []word
	seedLen int
	cost    int
	kind    schema.UnitKind
	locator int

	// lastText is the index of the chunk the current seed was taken from, or -1.
	lastText int
	lastCost int
}

func (b *builder) fresh() int { return len(b.buf) - b.seedLen }

func (b *builder) freshCost() int {
	n := 0
	for _, w := range b.buf[b.seedLen:] {
		n += w.cost
	}
	return n
}

func (b *builder) add(w word, locator int, kind schema.UnitKind) {
	if b.fresh() > 0 && b.cost+w.cost > b.opts.TargetTokens {
		b.emit()
		b.seed()
	}
	if b.fresh() == 0 {
		b.kind, b.locator = kind, locator
	}
	b.buf = append(b.buf, w)
	b.cost += w.cost
}

// boundary handles a page, slide or kind change. Fragments below MinTokens are
// carried into the next unit instead of becoming chunks of their own.
func (b *builder) boundary() {
	if b.freshCost() < b.opts.MinTokens {
		return
	}
	b.emit()
	b.seed()
}

// flush ends the running text region. A short tail is folded into the chunk its
// seed came from when that stays within MaxTokens.
func (b *builder) flush() {
	if b.fresh() > 0 {
		tail := b.freshCost()
		if tail < b.opts.MinTokens && b.seedLen > 0 && b.lastText >= 0 && b.lastCost+tail <= b.opts.MaxTokens {
			c := &b.chunks[b.lastText]
			c.Text += " " + joinWords(b.buf[b.seedLen:])
			b.lastCost += tail
		} else {
			b.emit()
		}
	}
	b.buf, b.seedLen, b.cost = nil, 0, 0
}

func (b *builder) emit() {
	b.chunks = append(b.chunks, schema.Chunk{
		ID:         ChunkID(b.documentID, len(b.chunks)),
		DocumentID: b.documentID,
		Text:       joinWords(b.buf),
		Kind:       b.kind,
		Locator:    b.locator,
		Sequence:   len(b.chunks),
	})
	b.lastText = len(b.chunks) - 1
	b.lastCost = b.cost
}

// seed keeps the trailing OverlapTokens of the emitted buffer.
func (b *builder) seed() {
	start, cost := len(b.buf), 0
	for start > 0 && cost+b.buf[start-1].cost <= b.opts.OverlapTokens {
		start--
		cost += b.buf[start].cost
	}
	b.buf = append([]word(nil), b.buf[start:]...)
	b.seedLen = len(b.buf)
	b.cost = cost
}

// table emits one or more table chunks. Rows are never split; a table larger than
// MaxTokens is cut between rows.
func (b *builder) table(u schema.StructuralUnit) {
	lines := tableLines(u)
	var (
		group []string
		cost  int
	)
	emit := func() {
		if len(group) == 0 {
			return
		}
		b.chunks = append(b.chunks, schema.Chunk{
			ID:         ChunkID(b.documentID, len(b.chunks)),
			DocumentID: b.documentID,
			Text:       strings.Join(group, "\n"),
			Kind:       schema.KindTable,
			Locator:    u.Locator,
			Sequence:   len(b.chunks),
		})
		group, cost = nil, 0
	}
	for _, line := range lines {
		lc := 0
		for _, w := range strings.Fields(line) {
			lc += b.opts.Count(w)
		}
		if len(group) > 0 && cost+lc > b.opts.MaxTokens {
			emit()
		}
		group = append(group, line)
		cost += lc
	}
	emit()
	b.lastText = -1
}

// RenderRow joins the cells of a table row the way table chunks store them.
func RenderRow(cells []string) string {
	trimmed := make([]string, len(cells))
	for i, c := range cells {
		trimmed[i] = strings.Join(strings.Fields(c), " ")
	}
	return strings.Join(trimmed, " | ")
}

func tableLines(u schema.StructuralUnit) []string {
	var lines []string
	if len(u.Rows) > 0 {
		for _, row := range u.Rows {
			if line := RenderRow(row); strings.Trim(line, " |") != "" {
				lines = append(lines, line)
			}
		}
		return lines
	}
	for _, line := range strings.Split(u.Text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func joinWords(words []word) string {
	n := 0
	for _, w := range words {
		n += utf8.RuneCountInString(w.text) + 1
	}
	var sb strings.Builder
	sb.Grow(n)
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.text)
	}
	return sb.String()
}
