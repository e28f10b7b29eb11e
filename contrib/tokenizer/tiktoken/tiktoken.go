// Package tiktoken counts tokens with OpenAI's BPE vocabularies. It satisfies
// the pipeline's TokenCounter so the synthesis context budget matches what the
// model actually consumes.
package tiktoken

import (
	"github.com/pkoukk/tiktoken-go"
)

type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New resolves the encoding for a model name, falling back to treating the
// name as an encoding name (for example "cl100k_base").
func New(name string) (*Tokenizer, error) {
	enc, err := tiktoken.EncodingForModel(name)
	if err != nil {
		enc, err = tiktoken.GetEncoding(name)
		if err != nil {
			return nil, err
		}
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

// CountTokens implements the pipeline's TokenCounter.
func (t *Tokenizer) CountTokens(text string) (int, error) {
	return len(t.Encode(text)), nil
}

func (t *Tokenizer) Decode(ids []int) string {
	return t.enc.Decode(ids)
}
