// Package database archives bids placed from this client and the final
// prices of auctions whose window elapsed.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	_ "github.com/lib/pq"
	"github.com/oklog/ulid/v2"
)

// PostgresClient wraps the PostgreSQL database connection
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient opens and pings the database
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// NewPostgresClientFromDB wraps an already opened handle
func NewPostgresClientFromDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

const schema = `
	CREATE TABLE IF NOT EXISTS placed_bids (
		id VARCHAR(26) PRIMARY KEY,
		event_id VARCHAR(64) NOT NULL UNIQUE,
		item_id VARCHAR(255) NOT NULL,
		bid_car_id VARCHAR(255) NOT NULL,
		user_id VARCHAR(255) NOT NULL,
		amount BIGINT NOT NULL,
		previous_price BIGINT NOT NULL DEFAULT 0,
		placed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auction_results (
		id VARCHAR(26) PRIMARY KEY,
		item_id VARCHAR(255) NOT NULL,
		title VARCHAR(255) NOT NULL DEFAULT '',
		final_price BIGINT NOT NULL DEFAULT 0,
		ended_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_placed_bids_user_id ON placed_bids(user_id);
	CREATE INDEX IF NOT EXISTS idx_placed_bids_placed_at ON placed_bids(placed_at);
	CREATE INDEX IF NOT EXISTS idx_auction_results_ended_at ON auction_results(ended_at);
	`

// InitSchema creates the archive tables
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertBid archives a placed bid and returns its row id.
// Replaying the same event is a no-op.
func (c *PostgresClient) InsertBid(ctx context.Context, event *models.BidEvent) (string, error) {
	query := `
		INSERT INTO placed_bids (id, event_id, item_id, bid_car_id, user_id, amount, previous_price, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING
	`

	id := newID(event.Timestamp)
	_, err := c.db.ExecContext(
		ctx,
		query,
		id,
		event.EventID,
		event.ItemID,
		event.BidCarID,
		event.UserID,
		event.Amount,
		event.PreviousPrice,
		event.Timestamp,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert bid: %w", err)
	}

	return id, nil
}

// InsertResult archives the final state of an elapsed auction
func (c *PostgresClient) InsertResult(ctx context.Context, result *models.AuctionResult) (string, error) {
	query := `
		INSERT INTO auction_results (id, item_id, title, final_price, ended_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	id := newID(result.EndedAt)
	if _, err := c.db.ExecContext(ctx, query, id, result.ItemID, result.Title, result.FinalPrice, result.EndedAt); err != nil {
		return "", fmt.Errorf("failed to insert auction result: %w", err)
	}

	return id, nil
}

// RecentBids returns the latest bids of a user, newest first
func (c *PostgresClient) RecentBids(ctx context.Context, userID string, limit int) ([]models.BidEvent, error) {
	query := `
		SELECT event_id, item_id, bid_car_id, user_id, amount, previous_price, placed_at
		FROM placed_bids
		WHERE user_id = $1
		ORDER BY placed_at DESC
		LIMIT $2
	`

	rows, err := c.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []models.BidEvent
	for rows.Next() {
		var bid models.BidEvent
		err := rows.Scan(
			&bid.EventID,
			&bid.ItemID,
			&bid.BidCarID,
			&bid.UserID,
			&bid.Amount,
			&bid.PreviousPrice,
			&bid.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bids: %w", err)
	}

	return bids, nil
}

// Results returns the most recently ended auctions
func (c *PostgresClient) Results(ctx context.Context, limit int) ([]models.AuctionResult, error) {
	query := `
		SELECT item_id, title, final_price, ended_at
		FROM auction_results
		ORDER BY ended_at DESC
		LIMIT $1
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var results []models.AuctionResult
	for rows.Next() {
		var r models.AuctionResult
		if err := rows.Scan(&r.ItemID, &r.Title, &r.FinalPrice, &r.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}

	return results, nil
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	return c.db.Close()
}

// newID returns a ULID so rows sort by the time they describe
func newID(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	return ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
