package records

import (
	"context"
	"time"
)

// Finder loads a single record.
type Finder interface {
	Find(ctx context.Context, kind Kind, id int64) (Record, error)
}

// Service answers editability questions for the authorization layer.
type Service struct {
	finder Finder
	now    func() time.Time
}

// NewService constructs a Service instance.
func NewService(finder Finder) *Service {
	return &Service{finder: finder, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Editability reports isClosed and isLocked for the record.
func (s *Service) Editability(ctx context.Context, kind Kind, id int64) (Editability, error) {
	if !kind.Valid() {
		return Editability{}, ErrUnknownKind
	}
	rec, err := s.finder.Find(ctx, kind, id)
	if err != nil {
		return Editability{}, err
	}
	return rec.Editability(s.now()), nil
}
