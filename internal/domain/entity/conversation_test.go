package entity

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusmarket/pkg/errors"
)

func TestConversationKeyIgnoresParticipantOrder(t *testing.T) {
	ab, err := NewConversationKey("alice", "bob", "p1", "")
	require.NoError(t, err)
	ba, err := NewConversationKey("bob", "alice", "p1", "")
	require.NoError(t, err)

	assert.Equal(t, ab.String(), ba.String())
	assert.Equal(t, "alice", ab.Low())
	assert.Equal(t, "bob", ba.High())
}

func TestConversationKeyDistinguishesListings(t *testing.T) {
	none, _ := NewConversationKey("alice", "bob", "", "")
	product, _ := NewConversationKey("alice", "bob", "p1", "")
	service, _ := NewConversationKey("alice", "bob", "", "p1")

	assert.NotEqual(t, none.String(), product.String())
	assert.NotEqual(t, product.String(), service.String())
}

func TestConversationKeyRejectsSelfConversation(t *testing.T) {
	_, err := NewConversationKey("alice", " alice ", "", "")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))

	_, err = NewConversationKey("alice", "", "", "")
	assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
}

func TestNewConversationKeepsInitiatorFirst(t *testing.T) {
	key, _ := NewConversationKey("zoe", "adam", "", "s9")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	c := NewConversation("c1", key, now)

	assert.Equal(t, "zoe", c.Participant1ID)
	assert.Equal(t, "adam", c.Participant2ID)
	assert.Equal(t, now, c.LastMessageAt)
	assert.Equal(t, now, c.CreatedAt)
	assert.True(t, c.HasParticipant("adam"))
	assert.False(t, c.HasParticipant("eve"))
}

func TestConversationKeyRejectsUnsafeIDs(t *testing.T) {
	tests := []struct {
		name                        string
		recipient, product, service string
	}{
		{name: "nul in participant", recipient: "bob\x00x"},
		{name: "unit separator in participant", recipient: "bob\x1f"},
		{name: "newline in participant", recipient: "bob\nx"},
		{name: "invalid utf8 participant", recipient: "bob\xff"},
		{name: "oversized participant", recipient: strings.Repeat("b", MaxIDLength+1)},
		{name: "control character in product", recipient: "bob", product: "a\x1f"},
		{name: "nul in service", recipient: "bob", service: "s\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConversationKey("alice", tt.recipient, tt.product, tt.service)
			assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
		})
	}

	_, err := NewConversationKey("alice", "bób-42", "p:1", "")
	assert.NoError(t, err)
}

func TestConversationKeyStringIsInjective(t *testing.T) {
	a := ConversationKey{Initiator: "alice", Recipient: "bob", ProductID: "a\x1f", ServiceID: "b"}
	b := ConversationKey{Initiator: "alice", Recipient: "bob", ProductID: "a", ServiceID: "\x1fb"}
	assert.NotEqual(t, a.String(), b.String())

	c := ConversationKey{Initiator: "alice", Recipient: "bob", ProductID: "1:x"}
	d := ConversationKey{Initiator: "alice", Recipient: "bob", ServiceID: "1:x"}
	assert.NotEqual(t, c.String(), d.String())
}
