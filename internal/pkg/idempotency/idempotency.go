// Package idempotency guards an operation by a client-supplied key in Redis and
// remembers the operation's result so a replayed request gets the same answer.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInProgress is returned when another call with the same key is still running.
	ErrInProgress = errors.New("idempotency: operation already in progress")
	// ErrInvalidState is returned when the stored value is not recognised.
	ErrInvalidState = errors.New("idempotency: invalid state")
	// ErrKeyRequired is returned for an empty key.
	ErrKeyRequired = errors.New("idempotency: key is required")
)

// State of a key.
type State string

const (
	StateNone       State = "none"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
)

func (s State) String() string {
	return string(s)
}

const completedPrefix = "completed:"

const (
	defaultLockDuration = 5 * time.Minute
	defaultResultTTL    = 24 * time.Hour
)

// Idempotency runs fn at most once per key within the result TTL.
type Idempotency interface {
	// Do runs fn when key is new and stores its result. When key already
	// completed, the stored result is returned with replayed set and fn is not
	// called. A failed fn releases the key so the caller may retry.
	Do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) (result []byte, replayed bool, err error)
}

// Option configures a StateTracker.
type Option func(*StateTracker)

// WithLockDuration bounds how long an in-progress key blocks duplicates.
func WithLockDuration(d time.Duration) Option {
	return func(s *StateTracker) {
		if d > 0 {
			s.lockDuration = d
		}
	}
}

// WithResultTTL sets how long a completed result is remembered.
func WithResultTTL(d time.Duration) Option {
	return func(s *StateTracker) {
		if d > 0 {
			s.resultTTL = d
		}
	}
}

// WithPrefix namespaces keys.
func WithPrefix(prefix string) Option {
	return func(s *StateTracker) { s.prefix = prefix }
}

// StateTracker is the Redis-backed Idempotency.
type StateTracker struct {
	client       redis.UniversalClient
	prefix       string
	lockDuration time.Duration
	resultTTL    time.Duration
}

func New(client redis.UniversalClient, opts ...Option) *StateTracker {
	s := &StateTracker{
		client:       client,
		prefix:       "idempotency:",
		lockDuration: defaultLockDuration,
		resultTTL:    defaultResultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquire claims key. It returns StateNone when the caller now owns the key, or
// the current state together with any stored result.
func (s *StateTracker) Acquire(ctx context.Context, key string) (State, []byte, error) {
	if key == "" {
		return StateNone, nil, ErrKeyRequired
	}
	fk := s.prefix + key

	for range 2 {
		acquired, err := s.client.SetNX(ctx, fk, StateInProgress.String(), s.lockDuration).Result()
		if err != nil {
			return StateNone, nil, err
		}
		if acquired {
			return StateNone, nil, nil
		}

		val, err := s.client.Get(ctx, fk).Result()
		if errors.Is(err, redis.Nil) {
			// expired between SETNX and GET
			continue
		}
		if err != nil {
			return StateNone, nil, err
		}

		switch {
		case val == StateInProgress.String():
			return StateInProgress, nil, nil
		case strings.HasPrefix(val, completedPrefix):
			return StateCompleted, []byte(strings.TrimPrefix(val, completedPrefix)), nil
		default:
			return StateNone, nil, ErrInvalidState
		}
	}

	return StateNone, nil, ErrInvalidState
}

// Complete stores result for key.
func (s *StateTracker) Complete(ctx context.Context, key string, result []byte) error {
	return s.client.Set(ctx, s.prefix+key, completedPrefix+string(result), s.resultTTL).Err()
}

// Release forgets key.
func (s *StateTracker) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

func (s *StateTracker) Do(ctx context.Context, key string, fn func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	state, stored, err := s.Acquire(ctx, key)
	if err != nil {
		return nil, false, err
	}

	switch state {
	case StateInProgress:
		return nil, false, ErrInProgress
	case StateCompleted:
		return stored, true, nil
	}

	result, err := fn(ctx)
	if err != nil {
		// the key is released on a context that outlives a canceled request
		if rerr := s.Release(context.WithoutCancel(ctx), key); rerr != nil {
			return nil, false, errors.Join(err, rerr)
		}
		return nil, false, err
	}

	if err := s.Complete(context.WithoutCancel(ctx), key, result); err != nil {
		return result, false, err
	}

	return result, false, nil
}
