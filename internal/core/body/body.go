// Package body accumulates a request body from its stream.
package body

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const chunkSize = 16 * 1024

// ErrTooLarge is returned when the body exceeds the configured maximum.
var ErrTooLarge = errors.New("request body too large")

// TransportError reports that the underlying stream failed mid-read.
type TransportError struct {
	Name    string
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Encoding selects how collected bytes are turned into text.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf8"
	EncodingLatin1 Encoding = "latin1"
	EncodingBase64 Encoding = "base64"
	EncodingHex    Encoding = "hex"
)

// ParseEncoding normalizes an encoding name. Empty means UTF-8.
func ParseEncoding(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return EncodingUTF8, nil
	case "latin1", "binary", "iso-8859-1":
		return EncodingLatin1, nil
	case "base64":
		return EncodingBase64, nil
	case "hex":
		return EncodingHex, nil
	default:
		return "", fmt.Errorf("unsupported body encoding %q", name)
	}
}

// Option configures Collect.
type Option func(*options)

type options struct {
	maxBytes int64
	observer func(chunk []byte)
}

// WithMaxBytes caps the body at n bytes. n <= 0 means no cap.
func WithMaxBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithChunkObserver calls fn with every chunk as it arrives. fn must not
// retain the slice.
func WithChunkObserver(fn func(chunk []byte)) Option {
	return func(o *options) { o.observer = fn }
}

// Collect reads r to EOF and returns the chunks concatenated in arrival
// order. An empty stream yields an empty, non-nil slice.
func Collect(r io.Reader, opts ...Option) ([]byte, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	buf := make([]byte, 0, 512)
	if r == nil {
		return buf, nil
	}

	chunk := make([]byte, chunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if o.maxBytes > 0 && int64(len(buf)+n) > o.maxBytes {
				return nil, ErrTooLarge
			}
			if o.observer != nil {
				o.observer(chunk[:n])
			}
			buf = append(buf, chunk[:n]...)
		}
		if err == io.EOF {
			return buf, nil
		}
		if err != nil {
			return nil, transportError(err)
		}
	}
}

// CollectText reads r to EOF and decodes the bytes with enc. Invalid UTF-8
// sequences are replaced with U+FFFD. Base64 and hex produce the encoded
// form of the raw bytes.
func CollectText(r io.Reader, enc Encoding, opts ...Option) (string, error) {
	enc, err := ParseEncoding(string(enc))
	if err != nil {
		return "", err
	}

	raw, err := Collect(r, opts...)
	if err != nil {
		return "", err
	}
	return Decode(raw, enc), nil
}

// Decode renders raw bytes as text using enc.
func Decode(raw []byte, enc Encoding) string {
	switch enc {
	case EncodingLatin1:
		runes := make([]rune, len(raw))
		for i, b := range raw {
			runes[i] = rune(b)
		}
		return string(runes)
	case EncodingBase64:
		return base64.StdEncoding.EncodeToString(raw)
	case EncodingHex:
		return hex.EncodeToString(raw)
	default:
		if utf8.Valid(raw) {
			return string(raw)
		}
		return strings.ToValidUTF8(string(raw), "�")
	}
}

func transportError(err error) *TransportError {
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimPrefix(name, "*")
	if name == "" || name == "errorString" {
		name = "TransportError"
	}
	return &TransportError{Name: name, Message: err.Error(), Err: err}
}
