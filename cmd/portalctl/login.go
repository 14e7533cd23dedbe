package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"portal/internal/adapters/api"
)

func newLoginCmd(g *globals) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the API and store the tokens locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			client, err := api.New(api.Config{BaseURL: g.apiURL})
			if err != nil {
				return err
			}
			res, err := client.Login(cmd.Context(), strings.TrimSpace(email), password)
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			err = saveCredentials(g.credentials, credentials{
				APIURL: g.apiURL,
				Email:  res.User.Email,
				Role:   res.User.Role,
				Tokens: res.Tokens,
			})
			if err != nil {
				return fmt.Errorf("save credentials: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", res.User.Email, res.User.Role)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise, so the password can be piped in scripts.
func readPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
