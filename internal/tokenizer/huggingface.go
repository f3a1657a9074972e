package tokenizer

import (
	"fmt"
	"unicode/utf8"

	hf "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer implements Tokenizer on top of a Hugging Face tokenizer.json
// using the pure-Go github.com/sugarme/tokenizer pipeline (normalizer,
// pre-tokenizer, model and post-processor as declared in the file).
type HFTokenizer struct {
	inner *hf.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer.json %q: %w", path, err)
	}

	return &HFTokenizer{inner: tk}, nil
}

// Encode implements Tokenizer. Special tokens come from the file's
// post-processor, so an empty text still yields them when addSpecial is set.
// Text that is not valid UTF-8 is rejected with ErrInvalidUTF8.
func (t *HFTokenizer) Encode(text string, addSpecial bool) (ids []uint32, err error) {
	if !utf8.ValidString(text) {
		return nil, ErrInvalidUTF8
	}

	// The normalizer pipeline indexes by byte offsets and panics on
	// inputs it cannot align.
	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, fmt.Errorf("encode: tokenizer panicked: %v", r)
		}
	}()

	enc, err := t.inner.EncodeSingle(text, addSpecial)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return toUint32(enc.Ids), nil
}

// VocabSize returns the vocabulary size including added tokens.
func (t *HFTokenizer) VocabSize() int {
	return t.inner.GetVocabSize(true)
}
