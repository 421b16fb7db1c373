package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"citystories/pkg/auth"
	"citystories/pkg/ui"
)

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage stored Instagram sessions",
	Long: `Manage Instagram web sessions stored outside the config file.

Sessions are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (read only)

'citystories run' falls back to the stored session when the configuration
does not contain one.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [profile]",
	Short: "Store a session",
	Long:  `Prompt for the sessionid and csrftoken cookies and store them under the given profile name.`,
	Example: `  citystories auth login
  citystories auth login backup`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogin,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [profile]",
	Short: "Remove a stored session",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLogout,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(statusCmd)
	authCmd.AddCommand(logoutCmd)
}

func profileArg(args []string) string {
	if len(args) > 0 && args[0] != "" {
		return args[0]
	}
	return auth.DefaultProfile
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := openCredentials()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}

	out := cmd.OutOrStdout()
	auth.WriteSessionGuide(out)
	fmt.Fprintln(out)

	in := cmd.InOrStdin()
	reader := bufio.NewReader(in)
	session, err := readSecret(out, in, reader, "Session ID: ")
	if err != nil {
		return err
	}
	if session == "" {
		return fmt.Errorf("session ID is required")
	}
	csrf, err := readLine(out, reader, "CSRF token (optional): ")
	if err != nil {
		return err
	}

	cred := &auth.Credential{
		Name:      profileArg(args),
		SessionID: session,
		CSRFToken: csrf,
	}
	if err := manager.Store(cred); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	ui.NewPrinter(out).Success(fmt.Sprintf("Session stored as %q", cred.Name))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	manager, err := openCredentials()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	creds, err := manager.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if len(creds) == 0 {
		p.Warning("No stored sessions. Run 'citystories auth login' first.")
		return nil
	}
	for _, c := range creds {
		s := auth.Sanitize(c)
		p.Info(s.Name, fmt.Sprintf("session %s  updated %s", s.SessionID, s.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := openCredentials()
	if err != nil {
		return fmt.Errorf("failed to initialize credential manager: %w", err)
	}
	name := profileArg(args)
	if err := manager.Delete(name); err != nil {
		return fmt.Errorf("failed to remove session %q: %w", name, err)
	}
	ui.NewPrinter(cmd.OutOrStdout()).Success(fmt.Sprintf("Session %q removed", name))
	return nil
}

func readLine(out io.Writer, r *bufio.Reader, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo when in is a terminal and falls back to a
// plain line read otherwise
func readSecret(out io.Writer, in io.Reader, r *bufio.Reader, prompt string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return readLine(out, r, prompt)
	}
	fd := int(f.Fd())
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
