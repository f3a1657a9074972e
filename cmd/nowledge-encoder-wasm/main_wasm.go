//go:build js && wasm

package main

import (
	"syscall/js"

	"github.com/example/go-nowledge-encoder/internal/encoder"
	"github.com/example/go-nowledge-encoder/internal/model"
)

const version = "0.1.0-wasm"

// The host reads files through the Node fs shim in wasm_exec.js, so the
// tokenizer is resolved from NOWLEDGE_MODEL_PATH exactly as in the CLI.
func main() {
	js.Global().Set("nowledgeEncode", js.FuncOf(encodeAsync))
	js.Global().Set("nowledgeWarm", js.FuncOf(warmAsync))
	js.Global().Set("nowledgeReady", js.FuncOf(ready))
	js.Global().Set("nowledgeInfo", js.ValueOf(map[string]any{
		"version": version,
		"model":   model.DefaultID,
	}))
	println("nowledge encoder wasm loaded")
	select {}
}

// encodeAsync returns a Promise of number[]. File reads during the first
// call need the JS event loop, so the work runs on a goroutine.
func encodeAsync(_ js.Value, args []js.Value) any {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return rejected("nowledgeEncode expects a string argument")
	}
	text := args[0].String()

	return promise(func() (any, error) {
		ids, err := encoder.Encode(text)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out, nil
	})
}

func warmAsync(_ js.Value, _ []js.Value) any {
	return promise(func() (any, error) {
		if err := encoder.Default().Warm(); err != nil {
			return nil, err
		}
		return true, nil
	})
}

func ready(_ js.Value, _ []js.Value) any {
	return encoder.Default().Ready()
}

func promise(work func() (any, error)) js.Value {
	var handler js.Func
	handler = js.FuncOf(func(_ js.Value, pArgs []js.Value) any {
		defer handler.Release()
		resolve := pArgs[0]
		reject := pArgs[1]

		go func() {
			res, err := work()
			if err != nil {
				reject.Invoke(jsError(err.Error()))
				return
			}
			resolve.Invoke(js.ValueOf(res))
		}()

		return nil
	})

	return js.Global().Get("Promise").New(handler)
}

func rejected(msg string) js.Value {
	return js.Global().Get("Promise").Call("reject", jsError(msg))
}

func jsError(msg string) js.Value {
	return js.Global().Get("Error").New(msg)
}
