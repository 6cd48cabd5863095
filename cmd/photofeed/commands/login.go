package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/florianilch/photofeed/internal/app"
	"github.com/florianilch/photofeed/internal/auth"
	"github.com/florianilch/photofeed/internal/callback"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the access token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "code",
				Usage: "authorization code (or the full redirect URL) to exchange",
			},
		},
		Action: withApp(loginAction),
	}
}

func loginAction(ctx context.Context, cmd *cli.Command, a *app.App, cfg *app.Config) error {
	out := cmd.Root().Writer

	unsubscribe := a.Auth().SubscribeActivity(func(ev auth.Activity) {
		if ev.Phase == auth.OperationStarted {
			fmt.Fprintln(out, "Signing in...")
		}
	})
	defer unsubscribe()

	code := cmd.String("code")
	if code != "" {
		parsed, err := parseCode(code)
		if err != nil {
			return err
		}
		code = parsed
	} else {
		var err error
		code, err = obtainCode(ctx, out, a, cfg)
		if err != nil {
			return err
		}
	}

	p, err := a.Login(ctx, code)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Signed in as %s\n", formatProfileName(p.Name, p.LoginName))
	return nil
}

// obtainCode runs the interactive part of sign-in: a loopback redirect URI is
// served locally, anything else requires the user to paste the code.
func obtainCode(ctx context.Context, out io.Writer, a *app.App, cfg *app.Config) (string, error) {
	if callback.IsLoopback(cfg.OAuth.RedirectURI) {
		return awaitRedirect(ctx, out, a, cfg)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no authorization code: pass --code or configure a loopback redirect uri")
	}

	fmt.Fprintf(out, "Open this URL in your browser and authorize access:\n\n  %s\n\n", a.Auth().AuthCodeURL(""))
	fmt.Fprint(out, "Paste the authorization code or redirect URL: ")

	// Not echoed, the code is a credential until exchanged
	input, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading authorization code: %w", err)
	}
	return parseCode(string(input))
}

// awaitRedirect serves the redirect URI until the authorization server sends
// the browser back with a code, or the login timeout elapses.
func awaitRedirect(ctx context.Context, out io.Writer, a *app.App, cfg *app.Config) (string, error) {
	state := uuid.NewString()

	server, err := callback.New(cfg.OAuth.RedirectURI, state)
	if err != nil {
		return "", fmt.Errorf("failed to create callback server: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.Login.Timeout)
	defer cancel()

	serverErrCh, err := server.Start(waitCtx, server.Address())
	if err != nil {
		return "", fmt.Errorf("callback server startup failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(out, "Open this URL in your browser and authorize access:\n\n  %s\n\n", a.Auth().AuthCodeURL(state))

	received, stop := context.WithCancel(waitCtx)
	defer stop()
	g, gCtx := errgroup.WithContext(received)

	var code string
	g.Go(func() error {
		defer stop()
		c, err := server.Wait(gCtx)
		if err != nil {
			return err
		}
		code = c
		return nil
	})

	// Monitor runtime errors - errgroup cancels the wait on the first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				return fmt.Errorf("callback server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("no authorization redirect within %s", cfg.Login.Timeout)
		}
		return "", err
	}
	return code, nil
}

// parseCode accepts either a bare authorization code or the full URL the
// browser was redirected to.
func parseCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", auth.ErrNoCode
	}
	if strings.Contains(input, "://") {
		return auth.CodeFromRedirect(input, "")
	}
	return input, nil
}

func formatProfileName(name, loginName string) string {
	if name == "" {
		return loginName
	}
	return fmt.Sprintf("%s (%s)", name, loginName)
}
