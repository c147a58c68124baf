// Package session presents one task list regardless of where tasks are
// stored and routes mutations to the active backend.
//
// A controller starts in local mode. When remote storage is configured it
// switches to remote mode on SignIn and back to local mode on SignOut. In
// remote mode the list changes only through snapshots of the live
// subscription; writes are never applied optimistically.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/remote"
)

var (
	ErrNotFound          = errors.New("task not found")
	ErrRemoteUnavailable = errors.New("remote storage is not configured")
	ErrRemoteWrite       = errors.New("remote write failed")
)

// WarningLocalOnly is shown while remote storage is not configured.
const WarningLocalOnly = "remote storage is not configured; tasks are kept locally"

// Mode names the active backend.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// LocalStore persists the whole list at once.
type LocalStore interface {
	Load(ctx context.Context) ([]model.Task, error)
	Replace(ctx context.Context, tasks []model.Task) error
}

// RemoteStore is a per-user document collection with live snapshots.
type RemoteStore interface {
	Subscribe(ctx context.Context, uid string) (*remote.Subscription, error)
	Insert(ctx context.Context, uid string, t model.Task) (string, error)
	Update(ctx context.Context, uid string, t model.Task) error
	Delete(ctx context.Context, uid, id string) error
}

type Options struct {
	Local LocalStore
	// Remote may be nil when no user is signed in on this machine; it can
	// be attached later with SetRemote.
	Remote RemoteStore
	// RemoteEnabled is the configuration gate (config.Firebase.Configured).
	RemoteEnabled bool
	Now           func() time.Time
	Logger        *slog.Logger
}

// State is a point-in-time copy of the session context.
type State struct {
	ID               string         `json:"id"`
	Mode             Mode           `json:"mode"`
	User             *auth.Identity `json:"user,omitempty"`
	RemoteConfigured bool           `json:"remoteConfigured"`
	Warning          string         `json:"warning,omitempty"`
	// SubscriptionError is the error that ended the current remote stream.
	SubscriptionError string `json:"subscriptionError,omitempty"`
}

// Controller owns the session context: active backend, identity, current
// list and the single live subscription.
type Controller struct {
	id            string
	local         LocalStore
	remote        RemoteStore
	remoteEnabled bool
	now           func() time.Time
	log           *slog.Logger

	// ctx bounds subscriptions; it is the context passed to Start.
	ctx context.Context

	// writeMu serialises local read-modify-write cycles.
	writeMu sync.Mutex
	// notifyMu orders listener calls so the last call always carries the
	// newest list.
	notifyMu sync.Mutex

	mu        sync.Mutex
	backend   backend
	identity  *auth.Identity
	tasks     []model.Task
	sub       *remote.Subscription
	gen       uint64
	synced    chan struct{}
	subErr    error
	listeners map[int]func([]model.Task)
	nextLis   int
}

func New(opts Options) *Controller {
	c := &Controller{
		id:            uuid.NewString(),
		local:         opts.Local,
		remote:        opts.Remote,
		remoteEnabled: opts.RemoteEnabled,
		now:           opts.Now,
		log:           opts.Logger,
		ctx:           context.Background(),
		tasks:         []model.Task{},
		listeners:     make(map[int]func([]model.Task)),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.backend = localBackend{c: c}
	return c
}

// Start loads the local list. Subscriptions started later live until ctx
// is cancelled or Close is called.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	if !c.remoteEnabled {
		c.log.Warn(WarningLocalOnly)
	}
	return c.reloadLocal(ctx, c.generation())
}

// Close tears down the active subscription.
func (c *Controller) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.gen++
	c.mu.Unlock()
	if sub != nil {
		sub.Stop()
	}
}

// Warning is the notice to show while remote storage is unavailable, or
// "".
func (c *Controller) Warning() string {
	if c.remoteEnabled {
		return ""
	}
	return WarningLocalOnly
}

// RemoteEnabled reports whether SignIn can switch to remote mode.
func (c *Controller) RemoteEnabled() bool {
	return c.remoteEnabled
}

// SetRemote attaches the store used by the next SignIn. The active
// subscription, if any, keeps the store it was started with.
func (c *Controller) SetRemote(store RemoteStore) {
	c.mu.Lock()
	c.remote = store
	c.mu.Unlock()
}

// SignIn switches to remote mode for id. Any previous subscription is
// detached before the new one starts, so at most one stream is live.
func (c *Controller) SignIn(ctx context.Context, id auth.Identity) error {
	c.mu.Lock()
	store := c.remote
	c.mu.Unlock()
	if !c.remoteEnabled || store == nil {
		return ErrRemoteUnavailable
	}
	if id.UID == "" {
		return remote.ErrNoIdentity
	}

	c.mu.Lock()
	old := c.sub
	c.sub = nil
	c.gen++
	gen := c.gen
	subCtx := c.ctx
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	sub, err := store.Subscribe(subCtx, id.UID)
	if err != nil {
		c.log.Error("task subscription failed to start", "uid", id.UID, "error", err)
		return fmt.Errorf("subscribe to tasks: %w", err)
	}

	synced := make(chan struct{})
	c.mu.Lock()
	if c.gen != gen {
		// a concurrent SignIn or SignOut won
		c.mu.Unlock()
		sub.Stop()
		return nil
	}
	ident := id
	c.identity = &ident
	c.backend = remoteBackend{c: c, store: store, uid: id.UID}
	c.sub = sub
	c.synced = synced
	c.subErr = nil
	c.mu.Unlock()

	c.log.Info("signed in, using remote storage", "uid", id.UID, "session", c.id)
	go c.pump(gen, sub, synced)
	return nil
}

// SignOut detaches the subscription and falls back to the local list.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	old := c.sub
	c.sub = nil
	c.gen++
	gen := c.gen
	c.identity = nil
	c.synced = nil
	c.subErr = nil
	c.backend = localBackend{c: c}
	c.mu.Unlock()
	if old != nil {
		old.Stop()
	}

	c.log.Info("signed out, using local storage", "session", c.id)
	return c.reloadLocal(ctx, gen)
}

// pump applies snapshots of one subscription until it ends or is
// superseded.
func (c *Controller) pump(gen uint64, sub *remote.Subscription, synced chan struct{}) {
	var once sync.Once
	settle := func() { once.Do(func() { close(synced) }) }
	defer settle()

	for snap := range sub.C {
		if snap.Err != nil {
			// The list stays at the last snapshot; no retry.
			c.log.Error("task subscription error", "error", snap.Err)
			c.mu.Lock()
			if c.gen == gen {
				c.subErr = snap.Err
			}
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.tasks = snap.Tasks
		c.mu.Unlock()
		settle()
		c.notify()
	}
}

// WaitSnapshot blocks until the current remote subscription has delivered
// its first snapshot or ended. It returns at once in local mode.
func (c *Controller) WaitSnapshot(ctx context.Context) error {
	c.mu.Lock()
	synced := c.synced
	c.mu.Unlock()
	if synced == nil {
		return nil
	}
	select {
	case <-synced:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subErr
}

// Save stores t. It returns the task's id: the given or newly minted id in
// local mode, the document id in remote mode. In remote mode the list is
// updated by the next snapshot, not by Save.
func (c *Controller) Save(ctx context.Context, t model.Task) (string, error) {
	t.Normalize()
	if err := t.Validate(); err != nil {
		return "", err
	}
	return c.currentBackend().save(ctx, t)
}

// Delete removes task id. Deleting an unknown id in local mode is a no-op.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	return c.currentBackend().delete(ctx, id)
}

// Tasks returns a copy of the current list.
func (c *Controller) Tasks() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.CloneAll(c.tasks)
}

// Get returns the task with id from the current list.
func (c *Controller) Get(id string) (model.Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.tasks {
		if t.ID == id {
			return t.Clone(), nil
		}
	}
	return model.Task{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (c *Controller) Mode() Mode {
	return c.currentBackend().mode()
}

// Identity returns the signed-in user, or nil in local mode.
func (c *Controller) Identity() *auth.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.identity == nil {
		return nil
	}
	id := *c.identity
	return &id
}

// State returns a copy of the session context without the task list.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		ID:               c.id,
		Mode:             c.backend.mode(),
		RemoteConfigured: c.remoteEnabled,
	}
	if c.identity != nil {
		id := *c.identity
		st.User = &id
	}
	st.Warning = c.Warning()
	if c.subErr != nil {
		st.SubscriptionError = c.subErr.Error()
	}
	return st
}

// Subscribe registers fn to receive the full list after every change. fn
// runs on the goroutine that caused the change and must not call Save,
// Delete, SignIn or SignOut.
func (c *Controller) Subscribe(fn func([]model.Task)) (cancel func()) {
	c.mu.Lock()
	id := c.nextLis
	c.nextLis++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) notify() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	tasks := c.tasks
	fns := make([]func([]model.Task), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(model.CloneAll(tasks))
	}
}

func (c *Controller) currentBackend() backend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend
}

func (c *Controller) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// reloadLocal reads the local list and publishes it, unless the session
// moved on (gen changed) in the meantime.
func (c *Controller) reloadLocal(ctx context.Context, gen uint64) error {
	tasks, err := c.local.Load(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	c.tasks = tasks
	c.mu.Unlock()
	c.notify()
	return nil
}
