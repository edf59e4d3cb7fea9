package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent. products and services are owned by the listings
// service; only the columns this service reads are declared here so a fresh
// database can be bootstrapped.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id         varchar PRIMARY KEY,
		title      varchar(255),
		is_active  boolean DEFAULT true,
		created_at timestamptz DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id         varchar PRIMARY KEY,
		title      varchar(255),
		is_active  boolean DEFAULT true,
		created_at timestamptz DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id              varchar PRIMARY KEY,
		participant1_id varchar NOT NULL,
		participant2_id varchar NOT NULL,
		product_id      varchar REFERENCES products(id),
		service_id      varchar REFERENCES services(id),
		last_message_at timestamptz NOT NULL,
		created_at      timestamptz NOT NULL,
		CHECK (participant1_id <> participant2_id)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS conversations_pair_listing_uq ON conversations (
		least(participant1_id, participant2_id),
		greatest(participant1_id, participant2_id),
		coalesce(product_id, ''),
		coalesce(service_id, '')
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_participant1_idx ON conversations (participant1_id, last_message_at DESC)`,
	`CREATE INDEX IF NOT EXISTS conversations_participant2_idx ON conversations (participant2_id, last_message_at DESC)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq             bigserial,
		id              varchar PRIMARY KEY,
		conversation_id varchar NOT NULL REFERENCES conversations(id),
		sender_id       varchar NOT NULL,
		content         text NOT NULL,
		created_at      timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at, seq)`,
}

// Migrate applies the conversation schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
