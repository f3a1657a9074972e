package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"
)

var setOfflineLoader sync.Once

// TikTokenTokenizer implements Tokenizer with an OpenAI BPE encoding whose
// ranks are embedded in the binary, so no model files are needed.
type TikTokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTikTokenTokenizer returns a tokenizer for the named encoding
// (e.g. "cl100k_base").
func NewTikTokenTokenizer(encoding string) (*TikTokenTokenizer, error) {
	setOfflineLoader.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("get tiktoken encoding %q: %w", encoding, err)
	}

	return &TikTokenTokenizer{enc: enc}, nil
}

// Encode implements Tokenizer. tiktoken encodings define no boundary
// tokens, so addSpecial has no effect.
func (t *TikTokenTokenizer) Encode(text string, _ bool) ([]uint32, error) {
	return toUint32(t.enc.Encode(text, nil, nil)), nil
}
