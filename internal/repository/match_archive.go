package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-multiplayer/internal/entity"
)

const matchKeyPrefix = "match:"

var ErrMatchNotFound = errors.New("match not found")

// MatchArchive keeps final snapshots of finished matches.
type MatchArchive interface {
	Save(ctx context.Context, session *entity.Session) error
	GetByID(ctx context.Context, id string) (*entity.Session, error)
}

type dbMatch struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMatchArchive - archive stored in Redis, entries expire after ttl (0 keeps them).
func NewMatchArchive(client *redis.Client, ttl time.Duration) MatchArchive {
	return &dbMatch{
		client: client,
		ttl:    ttl,
	}
}

func (that *dbMatch) Save(ctx context.Context, session *entity.Session) error {
	matchJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("could not marshal match: %w", err)
	}

	if err = that.client.Set(ctx, matchKeyPrefix+session.ID, matchJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set match: %w", err)
	}

	return nil
}

func (that *dbMatch) GetByID(ctx context.Context, id string) (*entity.Session, error) {
	response, err := that.client.Get(ctx, matchKeyPrefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMatchNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get match by id: %w", err)
	}

	var match entity.Session
	if err = json.Unmarshal([]byte(response), &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}

	return &match, nil
}

type nopMatch struct{}

// NewNopMatchArchive - archive used when Redis is disabled; it stores nothing.
func NewNopMatchArchive() MatchArchive {
	return nopMatch{}
}

func (nopMatch) Save(context.Context, *entity.Session) error {
	return nil
}

func (nopMatch) GetByID(context.Context, string) (*entity.Session, error) {
	return nil, ErrMatchNotFound
}
