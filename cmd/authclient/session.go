package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/authclient/credential"
	"github.com/MrEthical07/authclient/jwt"
	"github.com/spf13/cobra"
)

func loginCmd(a *app) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv("AUTHCLIENT_PASSWORD")
			}
			if email == "" || password == "" {
				return errors.New("--email and --password (or AUTHCLIENT_PASSWORD) are required")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if _, err := a.client.Login(ctx, map[string]string{"email": email, "password": password}); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", email)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func socialLoginCmd(a *app) *cobra.Command {
	var code string
	cmd := &cobra.Command{
		Use:   "social-login <provider>",
		Short: "Exchange a provider authorization code for credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" {
				return errors.New("--code is required")
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if _, err := a.client.SocialLogin(ctx, args[0], map[string]string{"code": code}); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in with %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&code, "code", "", "authorization code returned by the provider")
	return cmd
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored access token's claims",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			claims, err := a.client.AccessClaims(cmd.Context())
			switch {
			case errors.Is(err, credential.ErrNoCredentials):
				fmt.Fprintln(out, "not logged in")
				return nil
			case errors.Is(err, jwt.ErrNotJWT):
				fmt.Fprintln(out, "logged in (opaque access token)")
				return nil
			case err != nil:
				return err
			}

			fmt.Fprintf(out, "uid:  %s\n", claims.UID)
			if claims.Name != "" {
				fmt.Fprintf(out, "name: %s\n", claims.Name)
			}
			if claims.Role != "" {
				fmt.Fprintf(out, "role: %s\n", claims.Role)
			}
			if left, ok := claims.ExpiresIn(time.Now()); ok {
				if left > 0 {
					fmt.Fprintf(out, "access token expires in %s\n", left.Round(time.Second))
				} else {
					fmt.Fprintln(out, "access token expired, the next request refreshes it")
				}
			}
			return nil
		},
	}
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return describe(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}
