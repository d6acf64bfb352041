package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 0, 123456789, time.UTC)
	enc := EncodeCursor("evt|with|pipes", ts)
	require.NotEmpty(t, enc)

	c, err := DecodeCursor(enc)
	require.NoError(t, err)
	assert.Equal(t, "evt|with|pipes", c.LastID)
	assert.True(t, ts.Equal(c.Timestamp))
}

func TestDecodeCursorInvalid(t *testing.T) {
	c, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, c)

	_, err = DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	assert.Equal(t, "", EncodeCursor("", time.Now()))
}

func TestParseLimit(t *testing.T) {
	n, err := ParseLimit("")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, n)

	n, err = ParseLimit("5000")
	require.NoError(t, err)
	assert.Equal(t, MaxLimit, n)

	_, err = ParseLimit("-1")
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = ParseLimit("ten")
	assert.ErrorIs(t, err, ErrInvalidLimit)
}
