package payload

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVoteAccepts(t *testing.T) {
	tests := []struct {
		body string
		want json.Number
	}{
		{`{"candidate": 3}`, "3"},
		{`{"candidate":0}`, "0"},
		{`{"candidate": -1}`, "-1"},
		{`{"candidate": 2.5}`, "2.5"},
		{`{"candidate": 1e3}`, "1e3"},
		{` {"candidate": 7, "note": "extra fields are ignored"} `, "7"},
		{`{"candidate": 1, "candidate": 4}`, "4"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			req, err := Decode(KindVote, []byte(tt.body))
			require.NoError(t, err)

			vote, ok := req.(VoteRequest)
			require.True(t, ok)
			assert.Equal(t, KindVote, vote.Kind())
			assert.Equal(t, tt.want, vote.Candidate)
		})
	}
}

func TestDecodeVoteMalformed(t *testing.T) {
	for _, body := range []string{
		"",
		"not json",
		`{"candidate": 3`,
		`{"candidate": 3} trailing`,
		`{"candidate": 3} {}`,
		`{candidate: 3}`,
	} {
		t.Run(body, func(t *testing.T) {
			_, err := Decode(KindVote, []byte(body))
			require.Error(t, err)

			var malformed *MalformedError
			assert.True(t, errors.As(err, &malformed), "expected MalformedError, got %T", err)
		})
	}
}

func TestDecodeVoteWrongShape(t *testing.T) {
	for _, body := range []string{
		`{}`,
		`{"candidate": "3"}`,
		`{"candidate": null}`,
		`{"candidate": true}`,
		`{"candidate": [3]}`,
		`{"candidate": {"id": 3}}`,
		`[{"candidate": 3}]`,
		`null`,
		`3`,
		`"candidate"`,
	} {
		t.Run(body, func(t *testing.T) {
			_, err := Decode(KindVote, []byte(body))
			require.Error(t, err)

			var shape *ShapeError
			require.True(t, errors.As(err, &shape), "expected ShapeError, got %T", err)
			assert.Equal(t, KindVote, shape.Kind)
			assert.NotEmpty(t, shape.Reason)
		})
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode("ballot", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(KindVote, map[string]any{"candidate": json.Number("1")}))
	assert.True(t, IsValid(KindVote, map[string]any{"candidate": float64(2)}))
	assert.False(t, IsValid(KindVote, map[string]any{"candidate": "2"}))
	assert.False(t, IsValid(KindVote, map[string]any{}))
	assert.False(t, IsValid(KindVote, nil))
	assert.False(t, IsValid(KindVote, []any{}))
	assert.False(t, IsValid("ballot", map[string]any{"candidate": float64(2)}))
}

func TestErrorMessages(t *testing.T) {
	_, err := Decode(KindVote, []byte(`{"candidate": "x"}`))
	assert.EqualError(t, err, `invalid vote payload: "candidate" must be a number, got string`)

	_, err = Decode(KindVote, []byte(`[]`))
	assert.EqualError(t, err, "invalid vote payload: expected object, got array")
}
