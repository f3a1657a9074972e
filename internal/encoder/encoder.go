// Package encoder exposes the process-wide text → token-id operation.
//
// An Encoder constructs its tokenizer lazily on the first Encode call. The
// construction runs exactly once, even under concurrent first callers; all
// callers observe the same handle, or the same initialisation error. There
// is no retry: a failed load stays failed for the lifetime of the Encoder.
package encoder

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/go-nowledge-encoder/internal/tokenizer"
)

var (
	// ErrInit matches every *InitError.
	ErrInit = errors.New("tokenizer initialisation failed")
	// ErrEncode matches every *EncodeError.
	ErrEncode = errors.New("encoding failed")
)

// InitError reports that the tokenizer for ModelID could not be loaded.
type InitError struct {
	ModelID string
	Err     error
}

func (e *InitError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("load tokenizer: %v", e.Err)
	}
	return fmt.Sprintf("load tokenizer %s: %v", e.ModelID, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == ErrInit }

// EncodeError reports that the loaded tokenizer rejected the input.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// LoadFunc constructs the tokenizer handle. It is called at most once per Encoder.
type LoadFunc func() (tokenizer.Tokenizer, error)

type options struct {
	modelID string
	logger  *slog.Logger
	onLoad  func(time.Duration, error)
}

// Option configures an Encoder.
type Option func(*options)

// WithModelID sets the identifier reported in logs and errors.
func WithModelID(id string) Option {
	return func(o *options) { o.modelID = id }
}

// WithLogger sets the logger used to report the one-time load.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLoadObserver registers fn to be called once, after the load attempt,
// with its duration and result.
func WithLoadObserver(fn func(time.Duration, error)) Option {
	return func(o *options) { o.onLoad = fn }
}

// Encoder is a lazily initialised, shared tokenizer handle.
type Encoder struct {
	opts  options
	ready atomic.Bool
	get   func() (tokenizer.Tokenizer, error)
}

// New returns an Encoder that calls load on first use.
func New(load LoadFunc, optFns ...Option) *Encoder {
	opts := options{logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Encoder{opts: opts}
	e.get = sync.OnceValues(func() (tokenizer.Tokenizer, error) {
		return e.load(load)
	})

	return e
}

func (e *Encoder) load(load LoadFunc) (tok tokenizer.Tokenizer, err error) {
	start := time.Now()

	defer func() {
		// A loader panic becomes an initialisation error.
		if r := recover(); r != nil {
			tok, err = nil, fmt.Errorf("loader panicked: %v", r)
		}

		elapsed := time.Since(start)
		if e.opts.onLoad != nil {
			e.opts.onLoad(elapsed, err)
		}

		if err != nil {
			err = &InitError{ModelID: e.opts.modelID, Err: err}
			e.logger().Error("tokenizer load failed",
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				slog.String("error", err.Error()),
			)

			return
		}

		e.ready.Store(true)
		e.logger().Info("tokenizer loaded",
			slog.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}()

	tok, err = load()
	if err == nil && tok == nil {
		err = errors.New("loader returned no tokenizer")
	}

	return tok, err
}

// logger tags records with the model id when one is configured.
func (e *Encoder) logger() *slog.Logger {
	if e.opts.modelID == "" {
		return e.opts.logger
	}
	return e.opts.logger.With(slog.String("model", e.opts.modelID))
}

// Encode converts text into token ids, adding the model's boundary tokens.
// The first call loads the tokenizer; an initialisation failure is returned
// as *InitError on this and every later call. A tokenizer that rejects the
// text, or panics on it, yields *EncodeError. The returned slice belongs to
// the caller.
func (e *Encoder) Encode(text string) (ids []uint32, err error) {
	tok, err := e.get()
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			ids, err = nil, &EncodeError{Err: fmt.Errorf("tokenizer panicked: %v", r)}
		}
	}()

	ids, err = tok.Encode(text, true)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}

	return ids, nil
}

// MustEncode is like Encode but panics on failure.
func (e *Encoder) MustEncode(text string) []uint32 {
	ids, err := e.Encode(text)
	if err != nil {
		panic(err)
	}

	return ids
}

// Warm forces the one-time load without encoding anything.
func (e *Encoder) Warm() error {
	_, err := e.get()
	return err
}

// Ready reports whether the tokenizer has been loaded successfully. It never
// triggers the load.
func (e *Encoder) Ready() bool {
	return e.ready.Load()
}

// ModelID returns the identifier the Encoder was configured with.
func (e *Encoder) ModelID() string {
	return e.opts.modelID
}
