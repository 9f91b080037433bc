// Package payload turns raw request bodies into typed requests. Decoding
// and shape checking are separate steps with distinct errors.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Kind names an endpoint's payload schema.
type Kind string

const (
	KindVote Kind = "vote"
)

// ErrUnknownKind is returned for a Kind with no schema.
var ErrUnknownKind = errors.New("unknown payload kind")

// Request is a decoded, shape-checked payload.
type Request interface {
	Kind() Kind
}

// VoteRequest selects one candidate. The candidate is kept as the literal
// JSON number the client sent.
type VoteRequest struct {
	Candidate json.Number `json:"candidate"`
}

func (VoteRequest) Kind() Kind { return KindVote }

// MalformedError means the body is not parseable JSON.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// ShapeError means the body is valid JSON of the wrong shape.
type ShapeError struct {
	Kind   Kind
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, e.Reason)
}

// Decode parses data and checks it against kind's schema.
func Decode(kind Kind, data []byte) (Request, error) {
	if kind != KindVote {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	value, err := parse(data)
	if err != nil {
		return nil, err
	}

	return decodeVote(value)
}

// IsValid reports whether an already decoded JSON value satisfies kind's
// schema. Numbers may be json.Number or float64.
func IsValid(kind Kind, value any) bool {
	switch kind {
	case KindVote:
		_, err := decodeVote(value)
		return err == nil
	default:
		return false
	}
}

// parse decodes exactly one JSON value. Trailing non-whitespace is an error.
func parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &MalformedError{Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, &MalformedError{Err: err}
	}
	return value, nil
}

func decodeVote(value any) (VoteRequest, error) {
	obj, ok := value.(map[string]any)
	if !ok {
		return VoteRequest{}, &ShapeError{Kind: KindVote, Reason: fmt.Sprintf("expected object, got %s", typeName(value))}
	}

	raw, ok := obj["candidate"]
	if !ok {
		return VoteRequest{}, &ShapeError{Kind: KindVote, Reason: `missing field "candidate"`}
	}

	switch n := raw.(type) {
	case json.Number:
		return VoteRequest{Candidate: n}, nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return VoteRequest{}, &ShapeError{Kind: KindVote, Reason: `"candidate" is not finite`}
		}
		return VoteRequest{Candidate: json.Number(strconv.FormatFloat(n, 'f', -1, 64))}, nil
	default:
		return VoteRequest{}, &ShapeError{Kind: KindVote, Reason: fmt.Sprintf(`"candidate" must be a number, got %s`, typeName(raw))}
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
