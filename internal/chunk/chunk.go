// Package chunk splits markdown into token-budgeted chunks for embedding.
//
// Content is cut at paragraph boundaries (blank lines). Fenced code blocks
// are never split, even when they contain blank lines. Consecutive chunks
// share trailing paragraphs of the previous chunk so each chunk keeps some
// context.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// Defaults used by the CLI and the MCP tool.
const (
	DefaultMaxTokens = 512
	DefaultOverlap   = 128
)

const fence = "```"

// ErrInvalidOptions is returned by Split for a bad token budget.
var ErrInvalidOptions = errors.New("invalid chunk options")

// Encoder turns text into token ids. *encoder.Encoder satisfies it.
type Encoder interface {
	Encode(text string) ([]uint32, error)
}

// Options sets the token budget.
type Options struct {
	// MaxTokens is the budget a chunk's paragraphs are packed into. A single
	// paragraph larger than the budget becomes a chunk of its own.
	MaxTokens int
	// Overlap is the number of tokens, rounded up to whole paragraphs, that
	// a chunk repeats from the end of the previous one.
	Overlap int
}

// Validate reports whether the budget can be packed.
func (o Options) Validate() error {
	if o.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrInvalidOptions, o.MaxTokens)
	}
	if o.Overlap < 0 || o.Overlap >= o.MaxTokens {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidOptions, o.MaxTokens, o.Overlap)
	}
	return nil
}

// Chunk is one piece of the split content.
type Chunk struct {
	Index  int    `json:"index"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

type paragraph struct {
	text   string
	tokens int
}

// Split cuts markdown content into chunks. Whitespace-only content yields no
// chunks. Tokens on each chunk is the encoder's count for the chunk text.
func Split(enc Encoder, content string, opts Options) ([]Chunk, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	paras, err := countParagraphs(enc, Paragraphs(content))
	if err != nil {
		return nil, err
	}

	var (
		chunks  []Chunk
		current []paragraph
		total   int
	)

	flush := func() error {
		text := join(current)
		ids, err := enc.Encode(text)
		if err != nil {
			return fmt.Errorf("count chunk %d: %w", len(chunks), err)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: text, Tokens: len(ids)})
		return nil
	}

	for _, p := range paras {
		if len(current) > 0 && total+p.tokens > opts.MaxTokens {
			if err := flush(); err != nil {
				return nil, err
			}

			current = overlapTail(current, opts.Overlap, opts.MaxTokens-p.tokens)
			total = 0
			for _, c := range current {
				total += c.tokens
			}
		}

		current = append(current, p)
		total += p.tokens
	}

	if len(current) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}

	return chunks, nil
}

// overlapTail returns the trailing paragraphs of prev to repeat in the next
// chunk: at least overlap tokens when available, never more than room, and
// never all of prev, so every chunk adds new content.
func overlapTail(prev []paragraph, overlap, room int) []paragraph {
	start := len(prev)
	tokens := 0

	for start > 1 && tokens < overlap {
		next := prev[start-1].tokens
		if tokens+next > room {
			break
		}
		tokens += next
		start--
	}

	return append([]paragraph(nil), prev[start:]...)
}

func countParagraphs(enc Encoder, texts []string) ([]paragraph, error) {
	paras := make([]paragraph, 0, len(texts))
	for i, text := range texts {
		ids, err := enc.Encode(text)
		if err != nil {
			return nil, fmt.Errorf("count paragraph %d: %w", i, err)
		}
		paras = append(paras, paragraph{text: text, tokens: len(ids)})
	}
	return paras, nil
}

func join(paras []paragraph) string {
	texts := make([]string, len(paras))
	for i, p := range paras {
		texts[i] = p.text
	}
	return strings.Join(texts, "\n\n")
}

// Paragraphs splits content at blank lines. A fenced code block stays inside
// one paragraph from its opening fence to its closing fence; an unclosed
// fence runs to the end of the content.
func Paragraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	var (
		paras   []string
		current []string
		inFence bool
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if inFence {
			current = append(current, line)
			if strings.HasPrefix(trimmed, fence) {
				inFence = false
			}
			continue
		}

		if trimmed == "" {
			if len(current) > 0 {
				paras = append(paras, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}

		// ```x``` on one line opens and closes.
		if strings.HasPrefix(trimmed, fence) && !strings.Contains(trimmed[len(fence):], fence) {
			inFence = true
		}
		current = append(current, line)
	}

	if len(current) > 0 {
		paras = append(paras, strings.Join(current, "\n"))
	}

	return paras
}
