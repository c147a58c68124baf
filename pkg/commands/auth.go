package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/harrisonrobin/taskboard/pkg/session"
)

func NewLoginCommand() *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Sign in with Google (remote storage and calendar export)",
		Action: runLogin,
	}
}

func runLogin(ctx context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if !a.cfg.Firebase.Configured() {
		fmt.Fprintf(a.out, "Note: %s\n", session.WarningLocalOnly)
	}

	// drop any cached token so the account can be switched
	if err := a.auth.SignOut(); err != nil {
		return err
	}
	sess, err := a.auth.SignIn(ctx)
	if err != nil {
		return err
	}
	who := sess.Identity.Email
	if who == "" {
		who = sess.Identity.UID
	}
	fmt.Fprintf(a.out, "Signed in as %s\n", who)
	return nil
}

func NewLogoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the cached Google sign-in; tasks are then kept locally",
		Action: runLogout,
	}
}

func runLogout(_ context.Context, cmd *cli.Command) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if err := a.auth.SignOut(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}
