package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobIDRoundTripsThroughString(t *testing.T) {
	id := NewJobID()
	parsed, err := ParseJobID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseJobIDRejectsMalformedInput(t *testing.T) {
	_, err := ParseJobID("not-a-uuid")
	assert.Error(t, err)
}

func TestJobIDMarshalTextRoundTrips(t *testing.T) {
	id := NewJobID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var decoded JobID
	require.NoError(t, decoded.UnmarshalText(text))
	assert.Equal(t, id, decoded)
}
