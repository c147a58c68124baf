package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"

	"github.com/harrisonrobin/taskboard/pkg/auth"
	"github.com/harrisonrobin/taskboard/pkg/config"
	"github.com/harrisonrobin/taskboard/pkg/google"
	"github.com/harrisonrobin/taskboard/pkg/index"
	"github.com/harrisonrobin/taskboard/pkg/local"
	"github.com/harrisonrobin/taskboard/pkg/remote"
	"github.com/harrisonrobin/taskboard/pkg/session"
)

// snapshotTimeout bounds the wait for the first remote snapshot in one-shot
// commands.
const snapshotTimeout = 20 * time.Second

// app is what a command works with: configuration, logger, and once
// openSession ran, the task session.
type app struct {
	cfg     *config.Config
	cfgPath string
	dir     string
	log     *slog.Logger
	out     io.Writer
	in      io.Reader

	auth *auth.Authenticator
	// openStore connects to Firestore; remote.Open outside tests.
	openStore func(ctx context.Context, projectID string, log *slog.Logger, opts ...option.ClientOption) (*remote.Store, error)

	ctl *session.Controller

	// mu guards authSess and closers, which serve's login endpoint
	// changes while requests run.
	mu       sync.Mutex
	authSess *auth.Session
	closers  []func() error
}

// loadApp reads the configuration and sets up logging.
func loadApp(cmd *cli.Command) (*app, error) {
	root := cmd.Root()
	out := root.Writer
	if out == nil {
		out = os.Stdout
	}
	errOut := root.ErrWriter
	if errOut == nil {
		errOut = os.Stderr
	}
	in := root.Reader
	if in == nil {
		in = os.Stdin
	}

	cfgPath := cmd.String("config")
	if cfgPath == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return nil, fmt.Errorf("could not find path to configuration file: %w", err)
		}
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log := newLogger(errOut, cfg.LogLevel, cmd.Bool("debug"))
	slog.SetDefault(log)

	dir := filepath.Dir(cfgPath)
	a := &app{
		cfg:     cfg,
		cfgPath: cfgPath,
		dir:     dir,
		log:     log,
		out:     out,
		in:      in,
		auth:    auth.New(dir),

		openStore: remote.Open,
	}
	a.auth.Prompt = func(authURL string) {
		fmt.Fprintf(a.out, "Open the following URL in your browser to sign in:\n%s\n", authURL)
	}
	return a, nil
}

func newLogger(w io.Writer, level string, debug bool) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	if debug {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// openApp loads the app and opens the task session.
func openApp(ctx context.Context, cmd *cli.Command) (*app, error) {
	a, err := loadApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.openSession(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openSlot() (local.Slot, error) {
	path := a.cfg.StoragePath(a.dir)
	if a.cfg.Storage.Driver == config.StorageSQLite {
		slot, err := local.OpenSQLiteSlot(path)
		if err != nil {
			return nil, err
		}
		a.addCloser(slot.Close)
		return slot, nil
	}
	return local.NewFileSlot(path), nil
}

// openSession starts in local mode and switches to remote mode when remote
// storage is configured and a user is signed in on this machine.
func (a *app) openSession(ctx context.Context) error {
	slot, err := a.openSlot()
	if err != nil {
		return fmt.Errorf("open local storage: %w", err)
	}

	opts := session.Options{
		Local:         local.NewStore(slot),
		RemoteEnabled: a.cfg.Firebase.Configured(),
		Logger:        a.log,
	}

	var identity *auth.Identity
	if opts.RemoteEnabled {
		sess, err := a.googleSession(ctx)
		switch {
		case errors.Is(err, auth.ErrNoToken):
			a.log.Warn("not signed in, using local storage; run 'taskboard login'")
		case err != nil:
			a.log.Warn("could not restore sign-in, using local storage", "error", err)
		default:
			store, err := a.openRemote(ctx, sess)
			if err != nil {
				a.log.Warn("could not open remote storage, using local storage", "error", err)
				break
			}
			opts.Remote = store
			identity = &sess.Identity
		}
	}

	a.ctl = session.New(opts)
	if err := a.ctl.Start(ctx); err != nil {
		return err
	}
	if identity == nil {
		return nil
	}

	if err := a.ctl.SignIn(ctx, *identity); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if err := a.ctl.WaitSnapshot(waitCtx); err != nil {
		return fmt.Errorf("load remote tasks: %w", err)
	}
	return nil
}

// openRemote connects to Firestore with the credentials of sess.
func (a *app) openRemote(ctx context.Context, sess *auth.Session) (*remote.Store, error) {
	store, err := a.openStore(ctx, a.cfg.Firebase.ProjectID, a.log, option.WithTokenSource(sess.TokenSource))
	if err != nil {
		return nil, err
	}
	a.addCloser(store.Close)
	return store, nil
}

// googleSession restores the cached Google sign-in.
func (a *app) googleSession(ctx context.Context) (*auth.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.authSess != nil {
		return a.authSess, nil
	}
	sess, err := a.auth.Restore(ctx)
	if err != nil {
		return nil, err
	}
	a.authSess = sess
	return sess, nil
}

// signIn resumes the cached sign-in or, without one, runs the browser
// flow. It returns the identity and a store bound to its credentials.
func (a *app) signIn(ctx context.Context) (auth.Identity, session.RemoteStore, error) {
	sess, err := a.googleSession(ctx)
	if errors.Is(err, auth.ErrNoToken) {
		sess, err = a.auth.SignIn(ctx)
		if err == nil {
			a.mu.Lock()
			a.authSess = sess
			a.mu.Unlock()
		}
	}
	if err != nil {
		return auth.Identity{}, nil, err
	}
	store, err := a.openRemote(ctx, sess)
	if err != nil {
		return auth.Identity{}, nil, err
	}
	return sess.Identity, store, nil
}

// signOut forgets the cached token and the session built from it.
func (a *app) signOut() error {
	a.mu.Lock()
	a.authSess = nil
	a.mu.Unlock()
	return a.auth.SignOut()
}

func (a *app) addCloser(fn func() error) {
	a.mu.Lock()
	a.closers = append(a.closers, fn)
	a.mu.Unlock()
}

// exporter builds the calendar exporter for the configured calendar.
func (a *app) exporter(ctx context.Context) (*google.Exporter, error) {
	sess, err := a.googleSession(ctx)
	if err != nil {
		if errors.Is(err, auth.ErrNoToken) {
			return nil, fmt.Errorf("%w: run 'taskboard login' first", err)
		}
		return nil, err
	}
	client, err := google.NewClient(ctx, sess.Client, a.cfg.Calendar.Name)
	if err != nil {
		return nil, err
	}
	idx, err := index.NewEventIndex(filepath.Join(a.dir, index.FileName))
	if err != nil {
		a.log.Warn("failed to open event index, searching events instead", "error", err)
		idx = nil
	}
	return google.NewExporter(client, idx, a.log), nil
}

// Close stops the session first, then releases stores in reverse order.
func (a *app) Close() {
	if a.ctl != nil {
		a.ctl.Close()
	}
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			a.log.Debug("close", "error", err)
		}
	}
}
