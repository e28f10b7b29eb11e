package pipeline

import (
	"errors"

	"github.com/sweetpotato0/queryweave/evidence"
)

// Mode is the handling strategy the planner chose for a query.
type Mode string

const (
	// ModeDirect answers from model knowledge with no retrieval.
	ModeDirect Mode = "direct_llm"
	// ModeSingle fetches from exactly one evidence source.
	ModeSingle Mode = "single_retrieval"
	// ModeMulti fans out to two or more sub-queries.
	ModeMulti Mode = "multi_retrieval"
)

// Sentinel errors surfaced to callers.
var (
	// ErrEmptyQuery is returned when the query text is blank.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrSynthesis marks a terminal synthesizer failure. Unlike adapter
	// failures it cannot be worked around: no answer can be fabricated
	// without the synthesizer.
	ErrSynthesis = errors.New("answer synthesis failed")
)

// Query is the immutable pipeline input.
type Query struct {
	Text string

	// StrictLocal restricts retrieval to the local knowledge base.
	StrictLocal bool
	// Fast skips the second refinement pass.
	Fast bool
	// DisableWeb removes web search from the available sources.
	DisableWeb bool

	// Attachments are pre-extracted document summaries supplied by an
	// external parser. They are handed to the synthesizer as user-provided
	// context and are never indexed.
	Attachments []string
}

// SubQuery is one unit of planned work, produced by the planner on pass one
// or derived from evaluator follow-ups on pass two. Priority orders execution
// preference but never blocks: all sub-queries of a pass run concurrently.
type SubQuery struct {
	ID          string              `json:"id"`
	Description string              `json:"description"`
	Query       string              `json:"query"`
	Source      evidence.SourceKind `json:"tool"`
	Priority    int                 `json:"priority"`
}

// Plan is the planner output for one pass.
type Plan struct {
	Mode       Mode       `json:"mode"`
	Reason     string     `json:"reason"`
	SubQueries []SubQuery `json:"subqueries"`
}

// Evaluation is the evaluator verdict on a synthesized answer.
type Evaluation struct {
	Complete          bool       `json:"complete"`
	CompletenessScore float64    `json:"completeness_score"`
	Issues            []string   `json:"issues,omitempty"`
	Followups         []SubQuery `json:"followup_subqueries,omitempty"`
}

// Citation ties an [n] marker in the answer text to the evidence behind it.
type Citation struct {
	Index   int                 `json:"index"`
	Source  evidence.SourceKind `json:"source"`
	Locator string              `json:"locator"`
}

// AnswerResult is the terminal artifact returned to the caller. It is never
// mutated after creation. SourcesUsed lists exactly the sources that
// contributed evidence; a source that was planned but failed never appears.
type AnswerResult struct {
	Text        string                `json:"text"`
	Citations   []Citation            `json:"citations,omitempty"`
	SourcesUsed []evidence.SourceKind `json:"sources_used"`
	FastPath    bool                  `json:"fast_path"`
	PassesUsed  int                   `json:"passes_used"`
}

// UsedSource reports whether kind contributed evidence to the answer.
func (r *AnswerResult) UsedSource(kind evidence.SourceKind) bool {
	for _, used := range r.SourcesUsed {
		if used == kind {
			return true
		}
	}
	return false
}
