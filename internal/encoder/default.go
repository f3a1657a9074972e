package encoder

import (
	"os"
	"sync"

	"github.com/example/go-nowledge-encoder/internal/model"
	"github.com/example/go-nowledge-encoder/internal/tokenizer"
)

// ModelPathEnv overrides the directory the default encoder loads from.
const ModelPathEnv = "NOWLEDGE_MODEL_PATH"

// DefaultModelDir is used when ModelPathEnv is unset.
const DefaultModelDir = "models"

// Loader returns a LoadFunc that resolves id under dir and opens the
// tokenizer found there. tiktoken ids need no files and ignore dir.
func Loader(id, dir string) LoadFunc {
	return func() (tokenizer.Tokenizer, error) {
		ref, err := model.ParseRef(id)
		if err != nil {
			return nil, err
		}

		if ref.Kind == model.KindTikToken {
			return tokenizer.NewTikTokenTokenizer(ref.Encoding)
		}

		path, err := model.Resolve(ref, dir)
		if err != nil {
			return nil, err
		}

		return tokenizer.Open(path)
	}
}

// NewDefault returns an Encoder bound to model.DefaultID and loading from dir.
func NewDefault(dir string, optFns ...Option) *Encoder {
	optFns = append([]Option{WithModelID(model.DefaultID)}, optFns...)
	return New(Loader(model.DefaultID, dir), optFns...)
}

var defaultEncoder = sync.OnceValue(func() *Encoder {
	dir := os.Getenv(ModelPathEnv)
	if dir == "" {
		dir = DefaultModelDir
	}

	return NewDefault(dir)
})

// Default returns the process-wide Encoder.
func Default() *Encoder {
	return defaultEncoder()
}

// Encode encodes text with the process-wide Encoder.
func Encode(text string) ([]uint32, error) {
	return Default().Encode(text)
}

// MustEncode encodes text with the process-wide Encoder and panics on failure.
func MustEncode(text string) []uint32 {
	return Default().MustEncode(text)
}
