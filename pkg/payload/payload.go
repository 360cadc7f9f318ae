// Package payload carries task and training bodies between nodes without
// the cluster core interpreting them.
package payload

import (
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
)

type Kind string

const (
	// Opaque bytes, handed to the executor untouched.
	KindOpaque Kind = "opaque"
	// Structured JSON value.
	KindJSON Kind = "json"
	// WebAssembly module plus the exported function to call.
	KindWasm Kind = "wasm"
)

var (
	errUnknownKind  = fmt.Errorf("%w: unknown payload kind", pkgerrors.ErrInvalidData)
	errEmptyData    = fmt.Errorf("%w: payload data is empty", pkgerrors.ErrInvalidData)
	errEmptyValue   = fmt.Errorf("%w: payload value is empty", pkgerrors.ErrInvalidData)
	errMissingEntry = fmt.Errorf("%w: wasm payload requires a function name", pkgerrors.ErrInvalidData)
)

type Payload struct {
	Kind     Kind            `json:"kind"`
	Data     []byte          `json:"data,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Function string          `json:"function,omitempty"`
	Args     []uint64        `json:"args,omitempty"`
}

func Opaque(data []byte) Payload {
	return Payload{Kind: KindOpaque, Data: data}
}

func JSON(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Payload{}, err
	}

	return Payload{Kind: KindJSON, Value: data}, nil
}

func Wasm(module []byte, function string, args ...uint64) Payload {
	return Payload{Kind: KindWasm, Data: module, Function: function, Args: args}
}

func (p Payload) Validate() error {
	switch p.Kind {
	case KindOpaque:
		return nil
	case KindJSON:
		if len(p.Value) == 0 {
			return errEmptyValue
		}
		if !json.Valid(p.Value) {
			return fmt.Errorf("%w: payload value is not valid json", pkgerrors.ErrInvalidData)
		}

		return nil
	case KindWasm:
		if len(p.Data) == 0 {
			return errEmptyData
		}
		if p.Function == "" {
			return errMissingEntry
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownKind, p.Kind)
	}
}

// Decode unmarshals a JSON payload into v.
func (p Payload) Decode(v any) error {
	if p.Kind != KindJSON {
		return fmt.Errorf("cannot decode %q payload as json", p.Kind)
	}

	return json.Unmarshal(p.Value, v)
}
