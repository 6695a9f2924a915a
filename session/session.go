// Package session records answered questions so a conversation can be
// reviewed or resumed later.
//
// Available stores:
//   - [MemoryStore] keeps sessions in memory (useful for testing).
//   - [FileStore] persists sessions as JSON files on disk.
package session

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/armatrix/toolhost/answer"
	"github.com/armatrix/toolhost/llm"
)

// ErrNotFound is returned when a session id is unknown to a store.
var ErrNotFound = errors.New("session not found")

// Session is an ordered record of answers.
type Session struct {
	ID        string          `json:"id"`
	Answers   []answer.Answer `json:"answers"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// New creates an empty session with a fresh id.
func New() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append records answers in order. Nil entries are skipped.
func (s *Session) Append(answers ...*answer.Answer) {
	for _, a := range answers {
		if a != nil {
			s.Answers = append(s.Answers, *a)
		}
	}
	s.UpdatedAt = time.Now()
}

// Usage sums token usage over every answer.
func (s *Session) Usage() llm.Usage {
	var u llm.Usage
	for _, a := range s.Answers {
		u.InputTokens += a.Usage.InputTokens
		u.OutputTokens += a.Usage.OutputTokens
	}
	return u
}

// Clone returns a copy of the session with a new id.
func (s *Session) Clone() *Session {
	c := s.Copy()
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	return c
}

// Copy returns a deep copy that shares nothing with s.
func (s *Session) Copy() *Session {
	c := *s
	c.Answers = slices.Clone(s.Answers)
	return &c
}

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Load(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// List returns every session, oldest first.
	List(ctx context.Context) ([]*Session, error)
	// Fork copies a session under a new id and saves the copy.
	Fork(ctx context.Context, id string) (*Session, error)
}

func sortByCreation(list []*Session) {
	slices.SortStableFunc(list, func(a, b *Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
