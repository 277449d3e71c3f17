package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tOgg1/pagechat/internal/auth"
)

var (
	loginEmail         string
	loginPasswordStdin bool
	loginHash          bool
)

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "operator email")
	loginCmd.Flags().BoolVar(&loginPasswordStdin, "password-stdin", false, "read the password from stdin")
	loginCmd.Flags().BoolVar(&loginHash, "hash", false, "print a bcrypt hash of the password for auth.operators instead of signing in")
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in as an operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()

		if loginHash {
			password, err := readPassword(in, out, "Password: ")
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, hash)
			return err
		}

		cfg := GetConfig()
		if len(cfg.Auth.Operators) == 0 {
			return &PreflightError{
				Message:  auth.ErrNoOperators.Error(),
				Hint:     "add an operator with an email and password_hash under auth.operators",
				NextStep: "pagechat login --hash",
			}
		}

		email := strings.TrimSpace(loginEmail)
		if email == "" {
			if IsNonInteractive() {
				return errors.New("--email is required when not running on a terminal")
			}
			fmt.Fprint(out, "Email: ")
			line, err := in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			email = strings.TrimSpace(line)
		}
		password, err := readPassword(in, out, "Password: ")
		if err != nil {
			return err
		}

		gate := newGate(cfg)
		user, err := gate.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		if user == nil {
			return errors.New("invalid email or password")
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, user)
		}
		fmt.Fprintf(out, "Signed in as %s.\n", user.Email)
		PrintNextSteps(HintContext{Action: "login"})
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE: func(cmd *cobra.Command, args []string) error {
		gate := newGate(GetConfig())
		gate.SignOut(cmd.Context())
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return err
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		gate := newGate(GetConfig())
		user, err := gate.Require(cmd.Context())
		if err != nil && !errors.Is(err, auth.ErrSignInRequired) {
			return err
		}
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(cmd.OutOrStdout(), map[string]any{
				"state": gate.State(),
				"user":  user,
			})
		}
		if user == nil {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (since %s)\n", user.Email, formatTime(user.SignedInAt))
		return err
	},
}

// readPassword prompts without echo on a terminal, otherwise reads one line.
func readPassword(in *bufio.Reader, out io.Writer, prompt string) (string, error) {
	if !loginPasswordStdin && hasTTY() {
		fmt.Fprint(out, prompt)
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", auth.ErrMissingCredentials
	}
	return password, nil
}
