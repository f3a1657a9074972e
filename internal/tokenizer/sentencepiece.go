package tokenizer

import (
	"fmt"
	"os"

	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"
)

const (
	spBOS = "<s>"
	spEOS = "</s>"
)

// SentencePieceTokenizer implements Tokenizer using a pure-Go UNIGRAM SentencePiece model.
type SentencePieceTokenizer struct {
	proc gosp.Sentencepiece
	bos  int32
	eos  int32
}

// NewSentencePieceTokenizer loads a SentencePiece model from the given path.
func NewSentencePieceTokenizer(modelPath string) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	proc, err := gosp.NewSentencepieceFromFile(modelPath, false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model %q: %w", modelPath, err)
	}

	bos, eos, err := controlPieces(modelPath)
	if err != nil {
		return nil, err
	}

	return &SentencePieceTokenizer{proc: proc, bos: bos, eos: eos}, nil
}

// controlPieces returns the ids of the <s> and </s> control pieces, or -1
// for a piece the model does not define.
func controlPieces(modelPath string) (bos, eos int32, err error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return 0, 0, fmt.Errorf("read sentencepiece model %q: %w", modelPath, err)
	}

	var model gosp.ModelProto
	if err := proto.Unmarshal(data, &model); err != nil {
		return 0, 0, fmt.Errorf("unmarshal sentencepiece model: %w", err)
	}

	bos, eos = -1, -1
	for i, piece := range model.GetPieces() {
		if piece.GetType() != gosp.ModelProto_SentencePiece_CONTROL {
			continue
		}

		switch piece.GetPiece() {
		case spBOS:
			bos = int32(i)
		case spEOS:
			eos = int32(i)
		}
	}

	return bos, eos, nil
}

// Encode tokenizes text and returns SentencePiece token IDs.
func (t *SentencePieceTokenizer) Encode(text string, addSpecial bool) ([]uint32, error) {
	var ids []int32
	if text != "" {
		ids = t.proc.TokenizeToIDs(text)
	}

	result := make([]uint32, 0, len(ids)+2)
	if addSpecial && t.bos >= 0 {
		result = append(result, uint32(t.bos))
	}

	for _, id := range ids {
		result = append(result, uint32(id))
	}

	if addSpecial && t.eos >= 0 {
		result = append(result, uint32(t.eos))
	}

	return result, nil
}
