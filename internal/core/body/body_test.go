package body

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkedReader returns its parts one Read at a time.
type chunkedReader struct {
	parts [][]byte
	err   error
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.parts) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.parts[0])
	c.parts = c.parts[1:]
	return n, nil
}

func TestCollectConcatenatesChunksInOrder(t *testing.T) {
	r := &chunkedReader{parts: [][]byte{[]byte(`{"cand`), []byte(`idate"`), []byte(`: 3}`)}}

	var seen []string
	got, err := Collect(r, WithChunkObserver(func(chunk []byte) {
		seen = append(seen, string(chunk))
	}))
	require.NoError(t, err)

	assert.Equal(t, `{"candidate": 3}`, string(got))
	assert.Equal(t, []string{`{"cand`, `idate"`, `: 3}`}, seen)
}

func TestCollectEmptyStream(t *testing.T) {
	got, err := Collect(strings.NewReader(""))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = Collect(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollectOneByteReads(t *testing.T) {
	payload := strings.Repeat("vote", 5000)

	got, err := Collect(iotest.OneByteReader(strings.NewReader(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, string(got))
}

func TestCollectTransportError(t *testing.T) {
	r := &chunkedReader{parts: [][]byte{[]byte("partial")}, err: io.ErrUnexpectedEOF}

	_, err := Collect(r)
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "TransportError", terr.Name)
	assert.Equal(t, io.ErrUnexpectedEOF.Error(), terr.Message)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

type resetError struct{}

func (resetError) Error() string { return "connection reset by peer" }

func TestCollectTransportErrorNamesType(t *testing.T) {
	_, err := Collect(iotest.ErrReader(resetError{}))

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "resetError", terr.Name)
	assert.Equal(t, "resetError: connection reset by peer", err.Error())
}

func TestCollectMaxBytes(t *testing.T) {
	_, err := Collect(strings.NewReader("0123456789"), WithMaxBytes(9))
	assert.True(t, errors.Is(err, ErrTooLarge))

	got, err := Collect(strings.NewReader("0123456789"), WithMaxBytes(10))
	require.NoError(t, err)
	assert.Len(t, got, 10)

	got, err = Collect(strings.NewReader("0123456789"), WithMaxBytes(0))
	require.NoError(t, err)
	assert.Len(t, got, 10)
}

func TestCollectTextEncodings(t *testing.T) {
	raw := []byte{0x68, 0xe9, 0x21}

	tests := []struct {
		enc  Encoding
		want string
	}{
		{EncodingUTF8, "h�!"},
		{EncodingLatin1, "hé!"},
		{EncodingBase64, "aOkh"},
		{EncodingHex, "68e921"},
		{"", "h�!"},
	}
	for _, tt := range tests {
		got, err := CollectText(strings.NewReader(string(raw)), tt.enc)
		require.NoError(t, err, tt.enc)
		assert.Equal(t, tt.want, got, tt.enc)
	}

	got, err := CollectText(strings.NewReader("ünïcode ✓"), EncodingUTF8)
	require.NoError(t, err)
	assert.Equal(t, "ünïcode ✓", got)
}

func TestCollectTextRejectsUnknownEncoding(t *testing.T) {
	_, err := CollectText(strings.NewReader("x"), "ebcdic")
	assert.Error(t, err)
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{
		"UTF-8":      EncodingUTF8,
		"utf8":       EncodingUTF8,
		"binary":     EncodingLatin1,
		"ISO-8859-1": EncodingLatin1,
		"base64":     EncodingBase64,
		" hex ":      EncodingHex,
	} {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
