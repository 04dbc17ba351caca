// Command opsdash-notify signs in to an opsdash server and shows the user's
// notification feed in the terminal, updating live.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/charlesng35/opsdash/internal/credentials"
	"github.com/charlesng35/opsdash/internal/dataclient"
	"github.com/charlesng35/opsdash/internal/guard"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/notifications"
	"github.com/charlesng35/opsdash/internal/tui"
	"github.com/charlesng35/opsdash/pkg/logger"
)

var readPasswordFunc = term.ReadPassword // mockable

var errNoRole = errors.New("this account has no role yet; ask a leader to provision it")

type options struct {
	server         string
	identifier     string
	all            bool
	logout         bool
	noKeyring      bool
	credentialsDir string
	logLevel       string
	logFile        string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	opts := options{}
	fs := pflag.NewFlagSet("opsdash-notify", pflag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	fs.StringVarP(&opts.server, "server", "s", envOr("OPSDASH_SERVER", "http://localhost:8000"), "Server base URL")
	fs.StringVarP(&opts.identifier, "identifier", "u", os.Getenv("OPSDASH_USER"), "Email to sign in with when no session is stored")
	fs.BoolVarP(&opts.all, "all", "a", false, "Show every notification instead of the latest five")
	fs.BoolVar(&opts.logout, "logout", false, "Revoke the stored session and exit")
	fs.BoolVar(&opts.noKeyring, "no-keyring", false, "Do not read or store the refresh token in the system keyring")
	fs.StringVar(&opts.credentialsDir, "credentials-dir", "", "Directory for the file keyring fallback")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFile, "log-file", defaultLogFile(), "File to write logs to")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	opts.server = strings.TrimRight(strings.TrimSpace(opts.server), "/")
	if opts.server == "" {
		return opts, errors.New("--server is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if err := configureLogging(opts); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort
	log := logger.WithModule("notify")

	var creds *credentials.Store
	if !opts.noKeyring {
		if creds, err = credentials.Open(opts.credentialsDir); err != nil {
			log.Warn("keyring unavailable; the session will not be remembered", zap.Error(err))
			creds = nil
		}
	}

	client := newClient(opts.server, creds, log)

	if opts.logout {
		err := client.Logout(ctx)
		if creds != nil {
			if forgetErr := creds.Forget(opts.server); forgetErr != nil {
				log.Warn("forget refresh token", zap.Error(forgetErr))
			}
		}
		if err != nil && !dataclient.IsStatus(err, http.StatusUnauthorized) {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Signed out.")
		return nil
	}

	principal, err := authorize(ctx, client, opts.identifier, terminalPrompt(os.Stdin, os.Stdout))
	if err != nil {
		return err
	}

	capacity := notifications.CompactCap
	if opts.all {
		capacity = 0
	}
	store := notifications.NewStore(client, notifications.Options{Cap: capacity})
	defer store.Unmount()

	model := tui.New(tui.Config{
		Store:      store,
		Subscriber: notifications.NewSubscriber(client),
		Principal:  principal,
		BaseURL:    opts.server,
	})

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run notification center: %w", err)
	}
	return nil
}

func newClient(server string, creds *credentials.Store, log *zap.Logger) *dataclient.Client {
	var clientOpts []dataclient.Option
	if creds != nil {
		clientOpts = append(clientOpts, dataclient.WithTokenSink(func(tokens dataclient.Tokens) {
			if err := creds.SaveRefreshToken(server, tokens.RefreshToken); err != nil {
				log.Warn("store refresh token", zap.Error(err))
			}
		}))
	}
	client := dataclient.New(server, clientOpts...)

	if creds != nil {
		token, err := creds.RefreshToken(server)
		switch {
		case err == nil:
			client.SetTokens(dataclient.Tokens{RefreshToken: token})
		case !errors.Is(err, credentials.ErrNoToken):
			log.Warn("read refresh token", zap.Error(err))
		}
	}
	return client
}

// prompter asks for credentials. identifier may already be known.
type prompter func(identifier string) (string, string, error)

// authorize admits the client's session through the guard, signing in once
// when there is no session. Leaders and members are admitted.
func authorize(ctx context.Context, client *dataclient.Client, identifier string, prompt prompter) (identity.Principal, error) {
	g := guard.New(guard.Config{})
	scope := identity.NewScope(client, identity.NewRoleResolver(client))

	decision := g.Evaluate(ctx, scope, identity.Leader, identity.Member)
	if !decision.Render() && decision.Reason == nil {
		email, password, err := prompt(identifier)
		if err != nil {
			return identity.Principal{}, err
		}
		if _, err := client.Login(ctx, email, password); err != nil {
			return identity.Principal{}, fmt.Errorf("sign in: %w", err)
		}
		scope.Forget()
		decision = g.Evaluate(ctx, scope, identity.Leader, identity.Member)
	}

	switch {
	case decision.Render():
		return decision.Principal, nil
	case errors.Is(decision.Reason, identity.ErrRoleUnprovisioned):
		return identity.Principal{}, errNoRole
	case decision.Reason != nil:
		return identity.Principal{}, fmt.Errorf("resolve session: %w", decision.Reason)
	default:
		return identity.Principal{}, errors.New("not signed in")
	}
}

func terminalPrompt(in *os.File, out io.Writer) prompter {
	reader := bufio.NewReader(in)
	return func(identifier string) (string, string, error) {
		if strings.TrimSpace(identifier) == "" {
			fmt.Fprint(out, "Email: ")
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return "", "", fmt.Errorf("read email: %w", err)
			}
			identifier = strings.TrimSpace(line)
		}

		fmt.Fprint(out, "Password: ")
		pwd, err := readPasswordFunc(int(in.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		if len(pwd) == 0 {
			return "", "", errors.New("password is required")
		}
		return identifier, string(pwd), nil
	}
}

func configureLogging(opts options) error {
	var paths []string
	if opts.logFile != "" {
		if err := os.MkdirAll(filepath.Dir(opts.logFile), 0o700); err != nil {
			return err
		}
		paths = []string{opts.logFile}
	}
	return logger.InitWithOptions(logger.Options{
		Level:       opts.logLevel,
		Encoding:    "console",
		OutputPaths: paths,
	})
}

func defaultLogFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "opsdash", "notify.log")
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
