package session

import "time"

// Word is one word-level annotation inside a segment. Everything except the
// raw word is optional; absent numeric fields stay nil.
type Word struct {
	Word           string   `json:"word"`
	PunctuatedWord string   `json:"punctuated_word,omitempty"`
	Start          float64  `json:"start"`
	End            float64  `json:"end"`
	Confidence     *float64 `json:"confidence,omitempty"`
	Speaker        *int     `json:"speaker,omitempty"`
}

// Segment is one transcript fragment as delivered by the streaming provider.
// Segments are values: once built they are never mutated, so they may be
// shared across goroutines freely.
type Segment struct {
	ID         string    `json:"id"`
	Text       string    `json:"text"`
	Words      []Word    `json:"words,omitempty"`
	Start      float64   `json:"start"`
	End        float64   `json:"end"`
	Confidence *float64  `json:"confidence,omitempty"`
	Speaker    *int      `json:"speaker,omitempty"`
	Final      bool      `json:"final"`
	ReceivedAt time.Time `json:"received_at"`
}
