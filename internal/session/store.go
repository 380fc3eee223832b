// Package session persists the signed-in user's credentials and wishlist.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys in the key-value store
const (
	KeyAuthToken = "auth_token"
	KeyUserID    = "user_id"
	KeyWishlist  = "wishlist"
)

// ErrNotSignedIn is returned when no credentials are stored
var ErrNotSignedIn = errors.New("not signed in")

// Credentials are the persisted auth token and user id
type Credentials struct {
	Token  string `json:"-"`
	UserID string `json:"userId"`
}

// Store is a Redis-backed key-value store for session state
type Store struct {
	client *redis.Client
	prefix string
}

// NewStore connects to Redis. prefix namespaces the keys, e.g. per device.
func NewStore(addr, password string, db int, prefix string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewStoreFromClient(rdb, prefix), nil
}

// NewStoreFromClient wraps an existing client
func NewStoreFromClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + ":" + name
}

// LoadCredentials reads the stored token and user id. Missing keys are
// empty strings; ErrNotSignedIn is returned when both are absent.
func (s *Store) LoadCredentials(ctx context.Context) (Credentials, error) {
	pipe := s.client.Pipeline()
	tokenCmd := pipe.Get(ctx, s.key(KeyAuthToken))
	userCmd := pipe.Get(ctx, s.key(KeyUserID))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Credentials{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	creds := Credentials{Token: tokenCmd.Val(), UserID: userCmd.Val()}
	if creds.Token == "" && creds.UserID == "" {
		return creds, ErrNotSignedIn
	}
	return creds, nil
}

// SaveToken persists the auth token for reuse across reconnects and restarts
func (s *Store) SaveToken(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(KeyAuthToken), token, 0).Err(); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// SaveUserID persists the user id
func (s *Store) SaveUserID(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, s.key(KeyUserID), userID, 0).Err(); err != nil {
		return fmt.Errorf("failed to save user id: %w", err)
	}
	return nil
}

// SignOut removes the credentials. The wishlist is kept.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key(KeyAuthToken), s.key(KeyUserID)).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

// Wishlist returns the wishlisted car ids, sorted
func (s *Store) Wishlist(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.key(KeyWishlist)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read wishlist: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// AddToWishlist adds a car id
func (s *Store) AddToWishlist(ctx context.Context, itemID string) error {
	if err := s.client.SAdd(ctx, s.key(KeyWishlist), itemID).Err(); err != nil {
		return fmt.Errorf("failed to add %s to wishlist: %w", itemID, err)
	}
	return nil
}

// RemoveFromWishlist removes a car id
func (s *Store) RemoveFromWishlist(ctx context.Context, itemID string) error {
	if err := s.client.SRem(ctx, s.key(KeyWishlist), itemID).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from wishlist: %w", itemID, err)
	}
	return nil
}

// InWishlist reports whether a car id is wishlisted
func (s *Store) InWishlist(ctx context.Context, itemID string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.key(KeyWishlist), itemID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check wishlist: %w", err)
	}
	return ok, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
