// Package memory is a map-backed repository.Store. Writes are buffered per
// session and applied atomically on Commit; updates touch only the fields
// the session changed.
package memory

import (
	"context"
	"sync"
	"time"

	"advert-service/internal/domain"
	"advert-service/internal/repository"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	mu      sync.RWMutex
	adverts map[int64]domain.Advert
	nextID  int64
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{
		adverts: make(map[int64]domain.Advert),
		nextID:  1,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the source of creation dates.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Len returns the number of committed adverts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.adverts)
}

func (s *Store) InitSchema(ctx context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) Begin(ctx context.Context) (repository.Session, error) {
	return &session{
		store:   s,
		pending: make(map[int64]*write),
		loaded:  make(map[int64]domain.Advert),
	}, nil
}

func (s *Store) committed(id int64) (domain.Advert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ad, ok := s.adverts[id]
	return ad, ok
}

// write is a buffered change to one row. An insert carries the whole row;
// an update carries only the fields it changed, applied to whatever is
// committed when the session commits.
type write struct {
	row     domain.Advert
	insert  bool
	deleted bool
	changes domain.AdvertPatch
}

type session struct {
	store   *Store
	pending map[int64]*write
	loaded  map[int64]domain.Advert
	closed  bool
}

func (s *session) lookup(id int64) (domain.Advert, bool) {
	if w, ok := s.pending[id]; ok {
		if w.deleted {
			return domain.Advert{}, false
		}
		return w.row, true
	}
	return s.store.committed(id)
}

func (s *session) Get(ctx context.Context, id int64) (*domain.Advert, error) {
	if s.closed {
		return nil, repository.ErrSessionClosed
	}
	ad, ok := s.lookup(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	s.loaded[id] = ad
	return &ad, nil
}

func (s *session) Add(ctx context.Context, ad *domain.Advert) error {
	if s.closed {
		return repository.ErrSessionClosed
	}

	if before, ok := s.loaded[ad.ID]; ok {
		return s.update(ad, domain.Diff(before, *ad))
	}

	s.store.mu.Lock()
	if ad.ID == 0 {
		ad.ID = s.store.nextID
		s.store.nextID++
	}
	if ad.CreationDate.IsZero() {
		ad.CreationDate = s.store.now()
	}
	_, exists := s.store.adverts[ad.ID]
	s.store.mu.Unlock()

	if w, ok := s.pending[ad.ID]; exists || (ok && !w.deleted) {
		return repository.ErrConflict
	}

	s.pending[ad.ID] = &write{row: *ad, insert: true}
	s.loaded[ad.ID] = *ad
	return nil
}

func (s *session) update(ad *domain.Advert, patch domain.AdvertPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	current, ok := s.lookup(ad.ID)
	if !ok {
		return repository.ErrNotFound
	}
	patch.Apply(&current)

	w, ok := s.pending[ad.ID]
	if !ok {
		w = &write{}
		s.pending[ad.ID] = w
	}
	w.row = current
	w.changes.Merge(patch)

	s.loaded[ad.ID] = current
	return nil
}

func (s *session) Delete(ctx context.Context, ad *domain.Advert) error {
	if s.closed {
		return repository.ErrSessionClosed
	}
	if _, ok := s.lookup(ad.ID); !ok {
		return repository.ErrNotFound
	}
	s.pending[ad.ID] = &write{deleted: true}
	delete(s.loaded, ad.ID)
	return nil
}

func (s *session) Commit() error {
	if s.closed {
		return repository.ErrSessionClosed
	}
	s.closed = true

	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	for id, w := range s.pending {
		switch {
		case w.deleted:
			delete(s.store.adverts, id)
		case w.insert:
			s.store.adverts[id] = w.row
		default:
			row, ok := s.store.adverts[id]
			if !ok {
				continue
			}
			w.changes.Apply(&row)
			s.store.adverts[id] = row
		}
	}
	s.pending = nil
	return nil
}

func (s *session) Close() error {
	s.closed = true
	s.pending = nil
	return nil
}
