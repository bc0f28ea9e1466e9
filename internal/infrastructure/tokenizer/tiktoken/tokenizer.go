package tiktoken

import (
	"fmt"

	tokenizer "github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// Tokenizer adapts a BPE encoding to the chunker's tokenizer port. The same
// encoding the embedding model uses keeps token budgets honest.
type Tokenizer struct {
	enc *tokenizer.Tiktoken
}

func New(encoding string) (*Tokenizer, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}
	enc, err := tokenizer.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

func (t *Tokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func (t *Tokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *Tokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
