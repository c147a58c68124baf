package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/local"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/remote/remotetest"
)

var (
	alice = auth.Identity{UID: "alice", Email: "alice@example.com"}
	bob   = auth.Identity{UID: "bob", Email: "bob@example.com"}
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ctl   *Controller
	local *local.Store
	mem   *remotetest.Store
}

func newFixture(t *testing.T, remoteEnabled bool) fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := local.NewStore(local.NewFileSlot(filepath.Join(t.TempDir(), "data")))
	mem := remotetest.New()
	ctl := New(Options{
		Local:         store,
		Remote:        mem,
		RemoteEnabled: remoteEnabled,
		Now:           func() time.Time { return time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC) },
		Logger:        quietLogger(),
	})
	require.NoError(t, ctl.Start(ctx))
	t.Cleanup(ctl.Close)
	return fixture{ctl: ctl, local: store, mem: mem}
}

func names(tasks []model.Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Name)
	}
	return out
}

func TestLocalMode_NeverTouchesRemote(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	assert.Equal(t, ModeLocal, f.ctl.Mode())
	assert.Equal(t, WarningLocalOnly, f.ctl.State().Warning)

	id, err := f.ctl.Save(ctx, model.Task{Name: "report"})
	require.NoError(t, err)
	_, err = f.ctl.Save(ctx, model.Task{ID: id, Name: "report v2"})
	require.NoError(t, err)
	require.NoError(t, f.ctl.Delete(ctx, id))

	err = f.ctl.SignIn(ctx, alice)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, ModeLocal, f.ctl.Mode())
	assert.Zero(t, f.mem.Calls)
}

func TestLocalSave(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	id1, err := f.ctl.Save(ctx, model.Task{Name: "report", Priority: model.PriorityHigh})
	require.NoError(t, err)
	assert.True(t, model.IsLocalID(id1))

	id2, err := f.ctl.Save(ctx, model.Task{Name: "groceries", Category: model.CategoryPrivate})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	// edit in place keeps position
	_, err = f.ctl.Save(ctx, model.Task{ID: id1, Name: "final report", Progress: 150})
	require.NoError(t, err)

	got := f.ctl.Tasks()
	require.Len(t, got, 2)
	assert.Equal(t, []string{"final report", "groceries"}, names(got))
	assert.Equal(t, 100, got[0].Progress)
	assert.Equal(t, model.CategoryWork, got[0].Category)

	// the persisted list is what the controller shows, without timestamps
	stored, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, names(got), names(stored))
	for _, task := range append(got, stored...) {
		assert.Nil(t, task.CreatedAt, task.Name)
		assert.Nil(t, task.UpdatedAt, task.Name)
	}

	// timestamps carried over from elsewhere are dropped too
	stamp := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	_, err = f.ctl.Save(ctx, model.Task{ID: id2, Name: "groceries", CreatedAt: &stamp, UpdatedAt: &stamp})
	require.NoError(t, err)
	stored, err = f.local.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Nil(t, stored[1].CreatedAt)
	assert.Nil(t, stored[1].UpdatedAt)

	// unknown caller-supplied ids are appended
	_, err = f.ctl.Save(ctx, model.Task{ID: "task_1_zzzzzzzzz", Name: "imported"})
	require.NoError(t, err)
	assert.Equal(t, []string{"final report", "groceries", "imported"}, names(f.ctl.Tasks()))
}

func TestLocalSave_RejectsInvalid(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.ctl.Save(context.Background(), model.Task{Name: "  "})
	assert.ErrorIs(t, err, model.ErrInvalidTask)
	assert.Empty(t, f.ctl.Tasks())
}

func TestLocalDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	id, err := f.ctl.Save(ctx, model.Task{Name: "report"})
	require.NoError(t, err)

	require.NoError(t, f.ctl.Delete(ctx, "task_0_missing00"))
	assert.Len(t, f.ctl.Tasks(), 1)

	require.NoError(t, f.ctl.Delete(ctx, id))
	assert.Empty(t, f.ctl.Tasks())
	_, err = f.ctl.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoteMode_WritesArriveViaSnapshots(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))
	assert.Equal(t, ModeRemote, f.ctl.Mode())
	assert.Equal(t, "alice", f.ctl.Identity().UID)
	assert.Empty(t, f.ctl.Tasks())

	id, err := f.ctl.Save(ctx, model.Task{Name: "report"})
	require.NoError(t, err)
	assert.False(t, model.IsLocalID(id))

	assert.Eventually(t, func() bool { return len(f.ctl.Tasks()) == 1 }, time.Second, 5*time.Millisecond)

	// a local id is inserted as a new document
	_, err = f.ctl.Save(ctx, model.Task{ID: "task_1_aaaaaaaaa", Name: "from local"})
	require.NoError(t, err)
	assert.Len(t, f.mem.Tasks("alice"), 2)

	// a remote id updates the document
	_, err = f.ctl.Save(ctx, model.Task{ID: id, Name: "report v2", Progress: 50})
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		got, err := f.ctl.Get(id)
		return err == nil && got.Name == "report v2" && got.Progress == 50
	}, time.Second, 5*time.Millisecond)

	// newest created first
	assert.Eventually(t, func() bool {
		n := names(f.ctl.Tasks())
		return len(n) == 2 && n[0] == "from local" && n[1] == "report v2"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.ctl.Delete(ctx, id))
	assert.Eventually(t, func() bool { return len(f.ctl.Tasks()) == 1 }, time.Second, 5*time.Millisecond)

	// nothing was written locally
	stored, err := f.local.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRemoteMode_WriteFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))

	f.mem.FailWrites = errors.New("permission denied")
	_, err := f.ctl.Save(ctx, model.Task{Name: "report"})
	assert.ErrorIs(t, err, ErrRemoteWrite)
	err = f.ctl.Delete(ctx, "doc-1")
	assert.ErrorIs(t, err, ErrRemoteWrite)
	assert.Empty(t, f.ctl.Tasks())
}

func TestRemoteMode_UpdateMissingDocument(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.ctl.SignIn(ctx, alice))
	_, err := f.ctl.Save(ctx, model.Task{ID: "gone", Name: "report"})
	assert.ErrorIs(t, err, ErrRemoteWrite)
	assert.ErrorIs(t, err, remotetest.ErrNotFound)
}

func TestSignIn_ReplacesSubscription(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.mem.Insert(ctx, "alice", model.Task{Name: "alice task"})
	require.NoError(t, err)
	_, err = f.mem.Insert(ctx, "bob", model.Task{Name: "bob task"})
	require.NoError(t, err)

	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))
	assert.Equal(t, []string{"alice task"}, names(f.ctl.Tasks()))

	require.NoError(t, f.ctl.SignIn(ctx, bob))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))
	assert.Equal(t, 1, f.mem.Subscribers())
	assert.Equal(t, []string{"bob task"}, names(f.ctl.Tasks()))

	// alice's stream is detached; her writes no longer reach the list
	_, err = f.mem.Insert(ctx, "alice", model.Task{Name: "late alice"})
	require.NoError(t, err)
	_, err = f.mem.Insert(ctx, "bob", model.Task{Name: "bob 2"})
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(f.ctl.Tasks()) == 2 }, time.Second, 5*time.Millisecond)
	assert.NotContains(t, names(f.ctl.Tasks()), "late alice")
}

func TestSignOut_FallsBackToLocal(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.ctl.Save(ctx, model.Task{Name: "offline task"})
	require.NoError(t, err)

	_, err = f.mem.Insert(ctx, "alice", model.Task{Name: "cloud task"})
	require.NoError(t, err)
	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))
	assert.Equal(t, []string{"cloud task"}, names(f.ctl.Tasks()))

	require.NoError(t, f.ctl.SignOut(ctx))
	assert.Equal(t, ModeLocal, f.ctl.Mode())
	assert.Nil(t, f.ctl.Identity())
	assert.Zero(t, f.mem.Subscribers())
	assert.Equal(t, []string{"offline task"}, names(f.ctl.Tasks()))

	// signing out twice is harmless
	require.NoError(t, f.ctl.SignOut(ctx))
}

func TestSubscriptionError_KeepsLastList(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, err := f.mem.Insert(ctx, "alice", model.Task{Name: "cloud task"})
	require.NoError(t, err)
	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))

	f.mem.Fail("alice", errors.New("permission denied"))
	assert.Eventually(t, func() bool {
		return f.ctl.State().SubscriptionError == "permission denied"
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"cloud task"}, names(f.ctl.Tasks()))
	assert.Equal(t, ModeRemote, f.ctl.Mode())
}

func TestSignIn_SubscribeFailure(t *testing.T) {
	f := newFixture(t, true)
	f.mem.FailSubscribe = errors.New("unavailable")

	err := f.ctl.SignIn(context.Background(), alice)
	require.Error(t, err)
	assert.Equal(t, ModeLocal, f.ctl.Mode())
}

func TestSubscribe(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls [][]string
	)
	cancel := f.ctl.Subscribe(func(tasks []model.Task) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, names(tasks))
	})

	id, err := f.ctl.Save(ctx, model.Task{Name: "report"})
	require.NoError(t, err)
	require.NoError(t, f.ctl.Delete(ctx, id))

	cancel()
	_, err = f.ctl.Save(ctx, model.Task{Name: "unseen"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]string{{"report"}, {}}, calls)
}

func TestState(t *testing.T) {
	f := newFixture(t, true)
	st := f.ctl.State()
	assert.NotEmpty(t, st.ID)
	assert.Equal(t, ModeLocal, st.Mode)
	assert.True(t, st.RemoteConfigured)
	assert.Empty(t, st.Warning)
	assert.Nil(t, st.User)

	require.NoError(t, f.ctl.SignIn(context.Background(), alice))
	st = f.ctl.State()
	assert.Equal(t, ModeRemote, st.Mode)
	require.NotNil(t, st.User)
	assert.Equal(t, "alice@example.com", st.User.Email)
}

func TestSetRemote_AttachesStoreMidSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.ctl.SetRemote(nil)

	err := f.ctl.SignIn(ctx, alice)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
	assert.Equal(t, ModeLocal, f.ctl.Mode())

	_, err = f.mem.Insert(ctx, alice.UID, model.Task{Name: "remote task"})
	require.NoError(t, err)

	f.ctl.SetRemote(f.mem)
	require.NoError(t, f.ctl.SignIn(ctx, alice))
	require.NoError(t, f.ctl.WaitSnapshot(ctx))
	assert.Equal(t, ModeRemote, f.ctl.Mode())
	assert.Equal(t, []string{"remote task"}, names(f.ctl.Tasks()))
}
