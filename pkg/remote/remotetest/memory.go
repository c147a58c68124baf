// Package remotetest provides an in-memory stand-in for the Firestore task
// store with the same snapshot semantics.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/remote"
)

// ErrNotFound mirrors Firestore's NotFound on update of a missing document.
var ErrNotFound = errors.New("document not found")

type subscriber struct {
	uid string
	ch  chan remote.Snapshot
	// dead is closed by Stop; the store stops delivering to it.
	dead chan struct{}
}

// Store keeps users/{uid}/tasks in memory. Every write publishes a full
// snapshot to the user's subscribers, newest created first.
type Store struct {
	mu    sync.Mutex
	users map[string]map[string]model.Task
	subs  map[*subscriber]struct{}
	now   func() time.Time
	seq   int

	// FailWrites makes Insert, Update and Delete fail with this error.
	FailWrites error
	// FailSubscribe makes Subscribe fail with this error.
	FailSubscribe error

	// Calls counts every store operation, for asserting that local mode
	// never touches the remote store.
	Calls int
}

func New() *Store {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Store{
		users: make(map[string]map[string]model.Task),
		subs:  make(map[*subscriber]struct{}),
	}
	s.now = func() time.Time {
		// strictly increasing so createdAt ordering is deterministic
		s.seq++
		return base.Add(time.Duration(s.seq) * time.Second)
	}
	return s
}

func (s *Store) Subscribe(ctx context.Context, uid string) (*remote.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if uid == "" {
		return nil, remote.ErrNoIdentity
	}
	if s.FailSubscribe != nil {
		return nil, s.FailSubscribe
	}

	sub := &subscriber{uid: uid, ch: make(chan remote.Snapshot, 16), dead: make(chan struct{})}
	s.subs[sub] = struct{}{}
	sub.ch <- remote.Snapshot{Tasks: s.snapshotLocked(uid)}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[sub]; ok {
				delete(s.subs, sub)
				close(sub.dead)
				close(sub.ch)
			}
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-sub.dead:
		}
	}()
	return remote.NewSubscription(sub.ch, stop), nil
}

// Fail ends every subscription of uid with err, like a listener error.
func (s *Store) Fail(uid string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		if sub.uid != uid {
			continue
		}
		deliver(sub, remote.Snapshot{Err: err})
		delete(s.subs, sub)
		close(sub.dead)
		close(sub.ch)
	}
}

func (s *Store) Insert(_ context.Context, uid string, t model.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if uid == "" {
		return "", remote.ErrNoIdentity
	}
	if s.FailWrites != nil {
		return "", s.FailWrites
	}
	id := uuid.NewString()
	now := s.now()
	t = t.Clone()
	t.ID = id
	t.CreatedAt = &now
	t.UpdatedAt = &now
	s.userLocked(uid)[id] = t
	s.publishLocked(uid)
	return id, nil
}

func (s *Store) Update(_ context.Context, uid string, t model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if uid == "" {
		return remote.ErrNoIdentity
	}
	if s.FailWrites != nil {
		return s.FailWrites
	}
	docs := s.userLocked(uid)
	old, ok := docs[t.ID]
	if !ok {
		return fmt.Errorf("update task %s: %w", t.ID, ErrNotFound)
	}
	now := s.now()
	t = t.Clone()
	t.CreatedAt = old.CreatedAt
	t.UpdatedAt = &now
	docs[t.ID] = t
	s.publishLocked(uid)
	return nil
}

func (s *Store) Delete(_ context.Context, uid, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls++
	if uid == "" {
		return remote.ErrNoIdentity
	}
	if s.FailWrites != nil {
		return s.FailWrites
	}
	delete(s.userLocked(uid), id)
	s.publishLocked(uid)
	return nil
}

// Tasks returns the stored documents of uid, newest first.
func (s *Store) Tasks(uid string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(uid)
}

// Subscribers reports how many live subscriptions exist.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) userLocked(uid string) map[string]model.Task {
	docs, ok := s.users[uid]
	if !ok {
		docs = make(map[string]model.Task)
		s.users[uid] = docs
	}
	return docs
}

func (s *Store) snapshotLocked(uid string) []model.Task {
	out := make([]model.Task, 0, len(s.users[uid]))
	for _, t := range s.users[uid] {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(*out[j].CreatedAt) })
	return out
}

func (s *Store) publishLocked(uid string) {
	for sub := range s.subs {
		if sub.uid != uid {
			continue
		}
		deliver(sub, remote.Snapshot{Tasks: s.snapshotLocked(uid)})
	}
}

// deliver never blocks: when the buffer is full the oldest pending
// snapshot is dropped and the newest state wins.
func deliver(sub *subscriber, snap remote.Snapshot) {
	select {
	case sub.ch <- snap:
	default:
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}
}
