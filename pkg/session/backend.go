package session

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/taskboard/pkg/model"
)

// backend is the mode strategy. The controller swaps it on sign-in and
// sign-out; every operation goes through the current one.
type backend interface {
	mode() Mode
	save(ctx context.Context, t model.Task) (string, error)
	delete(ctx context.Context, id string) error
}

type localBackend struct {
	c *Controller
}

func (localBackend) mode() Mode { return ModeLocal }

// save overwrites the task with the same id wholesale, otherwise appends.
// Tasks without an id get a freshly minted local id.
func (b localBackend) save(ctx context.Context, t model.Task) (string, error) {
	c := b.c
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	gen := c.generation()

	tasks, err := c.local.Load(ctx)
	if err != nil {
		return "", err
	}

	if t.ID == "" {
		t.ID = model.NewLocalID(c.now())
	}
	// Local records carry no timestamps; those are assigned by the remote
	// store only.
	t.CreatedAt = nil
	t.UpdatedAt = nil

	replaced := false
	for i := range tasks {
		if tasks[i].ID == t.ID {
			tasks[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		tasks = append(tasks, t)
	}

	if err := c.local.Replace(ctx, tasks); err != nil {
		return "", err
	}
	if err := c.reloadLocal(ctx, gen); err != nil {
		return "", err
	}
	c.log.Debug("task saved locally", "id", t.ID, "replaced", replaced)
	return t.ID, nil
}

func (b localBackend) delete(ctx context.Context, id string) error {
	c := b.c
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	gen := c.generation()

	tasks, err := c.local.Load(ctx)
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tasks) {
		return nil
	}

	if err := c.local.Replace(ctx, kept); err != nil {
		return err
	}
	c.log.Debug("task deleted locally", "id", id)
	return c.reloadLocal(ctx, gen)
}

type remoteBackend struct {
	c     *Controller
	store RemoteStore
	uid   string
}

func (remoteBackend) mode() Mode { return ModeRemote }

// save updates the document when t carries a remote id and inserts a new
// document otherwise. Locally minted ids never name a remote document.
func (b remoteBackend) save(ctx context.Context, t model.Task) (string, error) {
	if t.ID != "" && !model.IsLocalID(t.ID) {
		if err := b.store.Update(ctx, b.uid, t); err != nil {
			b.c.log.Error("remote update failed", "id", t.ID, "error", err)
			return "", fmt.Errorf("%w: %w", ErrRemoteWrite, err)
		}
		return t.ID, nil
	}

	t.ID = ""
	id, err := b.store.Insert(ctx, b.uid, t)
	if err != nil {
		b.c.log.Error("remote insert failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}
	return id, nil
}

func (b remoteBackend) delete(ctx context.Context, id string) error {
	if err := b.store.Delete(ctx, b.uid, id); err != nil {
		b.c.log.Error("remote delete failed", "id", id, "error", err)
		return fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}
	return nil
}
