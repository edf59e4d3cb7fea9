package entity

import "time"

// Message is immutable once stored.
type Message struct {
	ID             string    `json:"id" firestore:"id"`
	ConversationID string    `json:"conversationId" firestore:"conversationId"`
	SenderID       string    `json:"senderId" firestore:"senderId"`
	Content        string    `json:"content" firestore:"content"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt"`
}

const MaxMessageLength = 4000
