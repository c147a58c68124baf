// Package remote keeps tasks in a per-user Firestore collection and streams
// full snapshots of it.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

var (
	ErrNoIdentity = errors.New("remote store requires a signed-in user")
	ErrNoID       = errors.New("remote update requires a document id")
)

// Snapshot is the full contents of a user's collection at one point in
// time, or the error that ended the stream.
type Snapshot struct {
	Tasks    []model.Task
	ReadTime time.Time
	Err      error
}

// Subscription is a live stream of snapshots. C is closed when the stream
// ends, either after Stop or after a delivered error.
type Subscription struct {
	C    <-chan Snapshot
	stop func()
	once sync.Once
}

// NewSubscription wraps a snapshot channel and the function that tears the
// producer down.
func NewSubscription(c <-chan Snapshot, stop func()) *Subscription {
	return &Subscription{C: c, stop: stop}
}

// Stop detaches the subscription. It is safe to call more than once.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// Store is the Firestore-backed task collection users/{uid}/tasks.
type Store struct {
	client *firestore.Client
	log    *slog.Logger
}

func NewStore(client *firestore.Client, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{client: client, log: log}
}

// Open connects to the project's default database. With
// FIRESTORE_EMULATOR_HOST set, the client talks to the emulator instead.
func Open(ctx context.Context, projectID string, log *slog.Logger, opts ...option.ClientOption) (*Store, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Firestore client: %w", err)
	}
	return NewStore(client, log), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) collection(uid string) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(uid).Collection("tasks")
}

// Subscribe streams the user's tasks ordered by creation time, newest
// first. Every change to the collection produces a full snapshot. A stream
// error is delivered once and ends the stream; it is not retried.
func (s *Store) Subscribe(ctx context.Context, uid string) (*Subscription, error) {
	if uid == "" {
		return nil, ErrNoIdentity
	}

	ctx, cancel := context.WithCancel(ctx)
	it := s.collection(uid).OrderBy(fieldCreatedAt, firestore.Desc).Snapshots(ctx)

	ch := make(chan Snapshot, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(ch)
		// Next and Stop must not run concurrently, so Stop lives here.
		defer it.Stop()

		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				send(ctx, ch, Snapshot{Err: fmt.Errorf("task snapshot: %w", err)})
				return
			}

			docs, err := qs.Documents.GetAll()
			if err != nil {
				send(ctx, ch, Snapshot{Err: fmt.Errorf("read task snapshot: %w", err)})
				return
			}
			tasks := make([]model.Task, 0, len(docs))
			for _, doc := range docs {
				var d document
				if err := doc.DataTo(&d); err != nil {
					s.log.Warn("skipping undecodable task document", "id", doc.Ref.ID, "error", err)
					continue
				}
				t, err := d.task(doc.Ref.ID)
				if err != nil {
					s.log.Warn("skipping task document", "id", doc.Ref.ID, "error", err)
					continue
				}
				tasks = append(tasks, t)
			}
			if !send(ctx, ch, Snapshot{Tasks: tasks, ReadTime: qs.ReadTime}) {
				return
			}
		}
	}()

	return NewSubscription(ch, func() {
		cancel()
		<-done
	}), nil
}

func send(ctx context.Context, ch chan<- Snapshot, snap Snapshot) bool {
	select {
	case ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// Insert adds t as a new document, ignoring t.ID, and returns the id the
// store assigned. createdAt and updatedAt are stamped by the server.
func (s *Store) Insert(ctx context.Context, uid string, t model.Task) (string, error) {
	if uid == "" {
		return "", ErrNoIdentity
	}
	data := fields(t)
	data[fieldCreatedAt] = firestore.ServerTimestamp
	data[fieldUpdatedAt] = firestore.ServerTimestamp

	ref, _, err := s.collection(uid).Add(ctx, data)
	if err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return ref.ID, nil
}

// Update overwrites the editable fields of document t.ID and stamps
// updatedAt. Other stored fields are left alone. A missing document is an
// error.
func (s *Store) Update(ctx context.Context, uid string, t model.Task) error {
	if uid == "" {
		return ErrNoIdentity
	}
	if t.ID == "" {
		return ErrNoID
	}
	if _, err := s.collection(uid).Doc(t.ID).Update(ctx, updates(t)); err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	return nil
}

// Delete removes document id.
func (s *Store) Delete(ctx context.Context, uid, id string) error {
	if uid == "" {
		return ErrNoIdentity
	}
	if _, err := s.collection(uid).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	return nil
}
