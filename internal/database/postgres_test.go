package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anuragpargaonkar/Bid-Application-sub000/shared/models"
	"github.com/oklog/ulid/v2"
)

func newMock(t *testing.T) (*PostgresClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresClientFromDB(db), mock
}

func TestInitSchema(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS placed_bids").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := c.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestInsertBid(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	event := &models.BidEvent{
		EventID:       "evt-1",
		ItemID:        "42",
		BidCarID:      "bid-42",
		UserID:        "u1",
		Amount:        104000,
		PreviousPrice: 102000,
		Timestamp:     at,
	}

	mock.ExpectExec("INSERT INTO placed_bids").
		WithArgs(sqlmock.AnyArg(), "evt-1", "42", "bid-42", "u1", int64(104000), int64(102000), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, err := c.InsertBid(context.Background(), event)
	if err != nil {
		t.Fatalf("InsertBid failed: %v", err)
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		t.Fatalf("Expected a ULID row id, got %q: %v", id, err)
	}
	if got := ulid.Time(parsed.Time()); !got.Equal(at) {
		t.Errorf("Expected ULID time %v, got %v", at, got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestInsertBidError(t *testing.T) {
	c, mock := newMock(t)
	mock.ExpectExec("INSERT INTO placed_bids").WillReturnError(errors.New("connection reset"))

	if _, err := c.InsertBid(context.Background(), &models.BidEvent{EventID: "e"}); err == nil {
		t.Fatal("Expected error")
	}
}

func TestInsertResult(t *testing.T) {
	c, mock := newMock(t)
	ended := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO auction_results").
		WithArgs(sqlmock.AnyArg(), "42", "Honda City", int64(250000), ended).
		WillReturnResult(sqlmock.NewResult(1, 1))

	_, err := c.InsertResult(context.Background(), &models.AuctionResult{
		ItemID: "42", Title: "Honda City", FinalPrice: 250000, EndedAt: ended,
	})
	if err != nil {
		t.Fatalf("InsertResult failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestRecentBids(t *testing.T) {
	c, mock := newMock(t)
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"event_id", "item_id", "bid_car_id", "user_id", "amount", "previous_price", "placed_at"}).
		AddRow("evt-2", "43", "bid-43", "u1", int64(50000), int64(48000), at).
		AddRow("evt-1", "42", "bid-42", "u1", int64(104000), int64(102000), at.Add(-time.Minute))
	mock.ExpectQuery("SELECT (.+) FROM placed_bids").WithArgs("u1", 10).WillReturnRows(rows)

	bids, err := c.RecentBids(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("RecentBids failed: %v", err)
	}
	if len(bids) != 2 {
		t.Fatalf("Expected 2 bids, got %d", len(bids))
	}
	if bids[0].EventID != "evt-2" || bids[1].Amount != 104000 {
		t.Errorf("Unexpected bids: %+v", bids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestResults(t *testing.T) {
	c, mock := newMock(t)
	ended := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"item_id", "title", "final_price", "ended_at"}).
		AddRow("42", "Honda City", int64(250000), ended)
	mock.ExpectQuery("SELECT (.+) FROM auction_results").WithArgs(5).WillReturnRows(rows)

	results, err := c.Results(context.Background(), 5)
	if err != nil {
		t.Fatalf("Results failed: %v", err)
	}
	if len(results) != 1 || results[0].FinalPrice != 250000 || !results[0].EndedAt.Equal(ended) {
		t.Errorf("Unexpected results: %+v", results)
	}
}
