package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerIdParseRoundTrip(t *testing.T) {
	id := NewPlayerId()

	parsed, err := ParsePlayerId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestPlayerIdTextMarshalling(t *testing.T) {
	id := NewPlayerId()

	text, err := id.MarshalText()
	require.NoError(t, err)

	var got PlayerId
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, id, got)
}

func TestRoomIdParseRoundTrip(t *testing.T) {
	id := NewRoomId()

	parsed, err := ParseRoomId(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParsePlayerIdRejectsGarbage(t *testing.T) {
	_, err := ParsePlayerId("not-a-uuid")
	assert.Error(t, err)
}

func TestNewTicketLengthAndCharset(t *testing.T) {
	ticket, err := NewTicket()
	require.NoError(t, err)
	assert.Len(t, string(ticket), ticketLength)

	for _, r := range string(ticket) {
		assert.Contains(t, ticketCharset, string(r))
	}
}

func TestNewTicketIsNotConstant(t *testing.T) {
	a, err := NewTicket()
	require.NoError(t, err)
	b, err := NewTicket()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
