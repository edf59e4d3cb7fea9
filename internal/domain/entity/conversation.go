package entity

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"campusmarket/pkg/errors"
)

// Conversation pairs exactly two users, optionally anchored to one product or
// service listing. Participant order is assigned at creation and kept stable,
// but identity is the unordered pair.
type Conversation struct {
	ID             string    `json:"id" firestore:"id"`
	Participant1ID string    `json:"participant1Id" firestore:"participant1Id"`
	Participant2ID string    `json:"participant2Id" firestore:"participant2Id"`
	Participants   []string  `json:"-" firestore:"participants"`
	ProductID      string    `json:"productId,omitempty" firestore:"productId"`
	ServiceID      string    `json:"serviceId,omitempty" firestore:"serviceId"`
	DedupKey       string    `json:"-" firestore:"dedupKey"`
	LastMessageAt  time.Time `json:"lastMessageAt" firestore:"lastMessageAt"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.Participant1ID == userID || c.Participant2ID == userID)
}

// ConversationKey identifies a conversation independently of participant
// order. Two keys built from swapped participants are equal.
type ConversationKey struct {
	// Initiator and Recipient keep the caller's order for the stored
	// participant1/participant2 columns.
	Initiator string
	Recipient string
	ProductID string
	ServiceID string
}

func NewConversationKey(initiator, recipient, productID, serviceID string) (ConversationKey, error) {
	key := ConversationKey{
		Initiator: strings.TrimSpace(initiator),
		Recipient: strings.TrimSpace(recipient),
		ProductID: strings.TrimSpace(productID),
		ServiceID: strings.TrimSpace(serviceID),
	}
	if err := key.Validate(); err != nil {
		return ConversationKey{}, err
	}
	return key, nil
}

func (k ConversationKey) Validate() error {
	if k.Initiator == "" || k.Recipient == "" {
		return errors.InvalidArgument("Both participants are required", nil)
	}
	if !ValidID(k.Initiator) || !ValidID(k.Recipient) {
		return errors.InvalidArgument("Invalid participant ID", nil)
	}
	if k.Initiator == k.Recipient {
		return errors.InvalidArgument("You cannot start a conversation with yourself", nil)
	}
	if k.ProductID != "" && !ValidID(k.ProductID) {
		return errors.InvalidArgument("Invalid productId", nil)
	}
	if k.ServiceID != "" && !ValidID(k.ServiceID) {
		return errors.InvalidArgument("Invalid serviceId", nil)
	}
	return nil
}

const MaxIDLength = 128

// ValidID reports whether id is a non-empty, printable UTF-8 identifier of
// at most MaxIDLength bytes. Control characters are refused so IDs can be
// embedded in store keys and Postgres text columns.
func ValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength || !utf8.ValidString(id) {
		return false
	}
	for _, r := range id {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Low and High return the participants in lexical order.
func (k ConversationKey) Low() string {
	if k.Initiator < k.Recipient {
		return k.Initiator
	}
	return k.Recipient
}

func (k ConversationKey) High() string {
	if k.Initiator < k.Recipient {
		return k.Recipient
	}
	return k.Initiator
}

// String is the normalized form used for unique indexes and deterministic
// document IDs. Each field is length-prefixed so distinct keys never encode
// to the same string.
func (k ConversationKey) String() string {
	var b strings.Builder
	for _, field := range [...]string{k.Low(), k.High(), k.ProductID, k.ServiceID} {
		b.WriteString(strconv.Itoa(len(field)))
		b.WriteByte(':')
		b.WriteString(field)
	}
	return b.String()
}

// NewConversation builds an unsaved conversation for key with both
// timestamps set to now.
func NewConversation(id string, key ConversationKey, now time.Time) *Conversation {
	return &Conversation{
		ID:             id,
		Participant1ID: key.Initiator,
		Participant2ID: key.Recipient,
		Participants:   []string{key.Initiator, key.Recipient},
		ProductID:      key.ProductID,
		ServiceID:      key.ServiceID,
		DedupKey:       key.String(),
		LastMessageAt:  now,
		CreatedAt:      now,
	}
}
