package auth

import (
	"context"
	"fmt"
	"io"

	"github.com/mycolog/mycolog/internal/app"
	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/session"
	"github.com/spf13/cobra"
)

// Command creates the auth command. Sessions are local: any email and
// password open one, and finds saved while signed in belong to that user.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign up or sign out",
	}

	cmd.AddCommand(
		signInCommand(settings),
		signUpCommand(settings),
		&cobra.Command{
			Use:   "logout",
			Short: "End the current session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
					if err := a.Sessions.Logout(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "signed out")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in user",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
					u, ok := a.Sessions.Current()
					if !ok {
						fmt.Fprintln(cmd.OutOrStdout(), "not signed in")
						return nil
					}
					printUser(cmd.OutOrStdout(), u)
					return nil
				})
			},
		},
	)
	return cmd
}

type credentials struct {
	email    string
	password string
	name     string
}

func (c *credentials) register(cmd *cobra.Command, withName bool) {
	cmd.Flags().StringVar(&c.email, "email", "", "Email address")
	cmd.Flags().StringVar(&c.password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	if withName {
		cmd.Flags().StringVar(&c.name, "name", "", "Display name")
	}
}

func signInCommand(settings *conf.Settings) *cobra.Command {
	var c credentials
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Open a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				u, err := a.Sessions.SignIn(ctx, c.email, c.password)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	c.register(cmd, false)
	return cmd
}

func signUpCommand(settings *conf.Settings) *cobra.Command {
	var c credentials
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create a user and open a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Do(cmd.Context(), settings, func(ctx context.Context, a *app.App) error {
				u, err := a.Sessions.SignUp(ctx, c.email, c.password, c.name)
				if err != nil {
					return err
				}
				printUser(cmd.OutOrStdout(), u)
				return nil
			})
		},
	}
	c.register(cmd, true)
	return cmd
}

func printUser(w io.Writer, u session.User) {
	fmt.Fprintf(w, "signed in as %s <%s> (id %s)\n", u.Name, u.Email, u.ID)
}
