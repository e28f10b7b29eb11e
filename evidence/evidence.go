package evidence

import "time"

// SourceKind identifies which evidence source produced an item.
type SourceKind string

const (
	SourceLocalKB   SourceKind = "local_kb"
	SourceWeb       SourceKind = "web"
	SourceWeather   SourceKind = "weather"
	SourceFinance   SourceKind = "finance"
	SourceTransport SourceKind = "transport"
	SourceTime      SourceKind = "time"
	SourceVision    SourceKind = "vision"
)

// Known lists every source kind the pipeline understands, in routing order.
func Known() []SourceKind {
	return []SourceKind{
		SourceLocalKB,
		SourceWeb,
		SourceWeather,
		SourceFinance,
		SourceTransport,
		SourceTime,
		SourceVision,
	}
}

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceLocalKB, SourceWeb, SourceWeather, SourceFinance,
		SourceTransport, SourceTime, SourceVision:
		return true
	}
	return false
}

// Item is a single piece of retrieved evidence. Items are immutable once an
// adapter returns them; downstream stages wrap rather than mutate them.
type Item struct {
	Source           SourceKind     `json:"source"`
	Content          string         `json:"content"`
	Locator          string         `json:"locator"` // URL, ticker, coordinates or doc ID
	Timestamp        *time.Time     `json:"timestamp,omitempty"`
	CredibilityPrior float64        `json:"credibility_prior"`
	RawScore         *float64       `json:"raw_score,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	cloned := it
	if it.Timestamp != nil {
		ts := *it.Timestamp
		cloned.Timestamp = &ts
	}
	if it.RawScore != nil {
		score := *it.RawScore
		cloned.RawScore = &score
	}
	if it.Metadata != nil {
		cloned.Metadata = make(map[string]any, len(it.Metadata))
		for k, v := range it.Metadata {
			cloned.Metadata[k] = v
		}
	}
	return cloned
}

// Scored wraps an item with the scores attached by fusion and reranking.
// A Scored value is recomputed from scratch whenever the evidence set changes;
// it is never mutated in place after scoring.
type Scored struct {
	Item              Item    `json:"item"`
	FusedRank         int     `json:"fused_rank"`
	RRFScore          float64 `json:"rrf_score"`
	CrossEncoderScore float64 `json:"cross_encoder_score"`
	FreshnessScore    float64 `json:"freshness_score"`
	CredibilityScore  float64 `json:"credibility_score"`
	CompositeScore    float64 `json:"composite_score"`
}

// Age returns how long ago the item was updated relative to now, or false when
// the item carries no timestamp.
func (it Item) Age(now time.Time) (time.Duration, bool) {
	if it.Timestamp == nil {
		return 0, false
	}
	return now.Sub(*it.Timestamp), true
}
