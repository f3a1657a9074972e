// Package tokenizer wraps third-party subword tokenizers behind one interface.
// Each implementation is immutable after construction and safe for
// concurrent use.
package tokenizer

import (
	"errors"
	"fmt"
	"path/filepath"
)

// Recognised model file names.
const (
	HFFileName            = "tokenizer.json"
	SentencePieceFileName = "tokenizer.model"
)

var (
	// ErrEmptyPath is returned when a constructor is called with an empty path.
	ErrEmptyPath = errors.New("tokenizer model path must not be empty")
	// ErrUnsupportedFormat is returned by Open for unknown model files.
	ErrUnsupportedFormat = errors.New("unsupported tokenizer model format")
	// ErrInvalidUTF8 is returned by Encode for text that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("text is not valid UTF-8")
)

// Tokenizer encodes text into token IDs.
type Tokenizer interface {
	// Encode tokenizes text. When addSpecial is true the model's boundary
	// tokens (e.g. [CLS]/[SEP] or <s>/</s>) are added around the content ids.
	Encode(text string, addSpecial bool) ([]uint32, error)
}

// Open loads the tokenizer stored at path, choosing the backend from the
// file name: tokenizer.json (and any other *.json) is a Hugging Face
// tokenizer, *.model is a SentencePiece model.
func Open(path string) (Tokenizer, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	switch filepath.Ext(path) {
	case ".json":
		return NewHFTokenizer(path)
	case ".model":
		return NewSentencePieceTokenizer(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
}

func toUint32(ids []int) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}

	return out
}
