// Package model resolves tokenizer model identifiers to files on disk and
// provisions those files from the Hugging Face hub.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultID is the model the encoder is bound to. It is fixed at build time;
// override with -ldflags "-X github.com/example/go-nowledge-encoder/internal/model.DefaultID=org/name".
var DefaultID = "TaylorAI/bge-micro-v2"

// Tokenizer file names, in resolution preference order.
const (
	HFTokenizerFile            = "tokenizer.json"
	SentencePieceTokenizerFile = "tokenizer.model"
)

// TokenizerFiles lists the files Resolve looks for.
var TokenizerFiles = []string{HFTokenizerFile, SentencePieceTokenizerFile}

const tiktokenPrefix = "tiktoken:"

// Kind identifies where a model's tokenizer comes from.
type Kind int

const (
	// KindHub is a Hugging Face repository ("org/name") provisioned to disk.
	KindHub Kind = iota
	// KindTikToken is a tiktoken encoding embedded in the binary.
	KindTikToken
)

func (k Kind) String() string {
	switch k {
	case KindHub:
		return "hub"
	case KindTikToken:
		return "tiktoken"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrInvalidID is returned by ParseRef for malformed identifiers.
var ErrInvalidID = errors.New("invalid model id")

// Ref is a parsed model identifier.
type Ref struct {
	ID   string
	Kind Kind
	// Org and Name are set for KindHub.
	Org  string
	Name string
	// Encoding is set for KindTikToken.
	Encoding string
}

// ParseRef parses "org/name" or "tiktoken:<encoding>".
func ParseRef(id string) (Ref, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Ref{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	if enc, ok := strings.CutPrefix(id, tiktokenPrefix); ok {
		if enc == "" {
			return Ref{}, fmt.Errorf("%w: %q has no encoding name", ErrInvalidID, id)
		}

		return Ref{ID: id, Kind: KindTikToken, Encoding: enc}, nil
	}

	org, name, ok := strings.Cut(id, "/")
	if !ok || org == "" || name == "" || strings.Contains(name, "/") {
		return Ref{}, fmt.Errorf("%w: %q (want org/name or tiktoken:<encoding>)", ErrInvalidID, id)
	}

	return Ref{ID: id, Kind: KindHub, Org: org, Name: name}, nil
}

// HubCacheDir is the directory name huggingface_hub uses for the repository
// inside its cache ("models--org--name").
func (r Ref) HubCacheDir() string {
	return "models--" + r.Org + "--" + r.Name
}
