package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AltairaLabs/convostream/runtime/auth"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login <callback-url>",
		Short: "Sign in with the redirect URL from the browser sign-in",
		Long: `Completes sign-in with the callback URL the identity provider redirected
to. The URL carries access_token and refresh_token in its query or fragment.

Example:
  convostream login 'http://localhost:3000/auth/callback?access_token=...&refresh_token=...'`,
		Args: cobra.ExactArgs(1),
		RunE: run(func(ctx context.Context, a *app, args []string) error {
			cred, err := a.auth.SignInCallback(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s (access token expires %s)\n",
				cred.Subject, cred.ExpiresAt().Local().Format(time.RFC1123))
			return nil
		}),
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.auth.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		}),
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in subject and token state",
		Args:  cobra.NoArgs,
		RunE: run(func(_ context.Context, a *app, _ []string) error {
			cred, ok := a.auth.Credential()
			if !ok {
				return errNotSignedIn
			}
			state := "valid"
			switch {
			case cred.LastError != auth.ErrorNone:
				state = "refresh failed"
			case cred.IsExpired(time.Now()):
				state = "expired, refreshed on next use"
			}
			fmt.Fprintf(a.out, "Subject: %s\nExpires: %s\nState:   %s\n",
				cred.Subject, cred.ExpiresAt().Local().Format(time.RFC1123), state)
			return nil
		}),
	}
}
