package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/photofeed/internal/app"
	"github.com/florianilch/photofeed/internal/feed"
	"github.com/florianilch/photofeed/internal/photoapi"
	"github.com/florianilch/photofeed/internal/session"
)

// errSignedOutHint replaces missing-token errors in command output.
var errSignedOutHint = errors.New("not signed in, run `photofeed login` first")

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "report whether a token is stored",
		Action: withApp(statusAction),
	}
}

func statusAction(ctx context.Context, cmd *cli.Command, a *app.App, cfg *app.Config) error {
	ok, err := a.Authenticated(ctx)
	if err != nil {
		return err
	}

	out := cmd.Root().Writer
	if !ok {
		fmt.Fprintf(out, "Signed out (token storage: %s)\n", cfg.Auth.Storage)
		return nil
	}
	fmt.Fprintf(out, "Signed in (token storage: %s)\n", cfg.Auth.Storage)
	return nil
}

func feedCommand() *cli.Command {
	return &cli.Command{
		Name:  "feed",
		Usage: "list photos from the feed",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "pages",
				Usage: "number of pages to load",
				Value: 1,
			},
		},
		Action: withApp(feedAction),
	}
}

func feedAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	if err := a.Bootstrap(ctx); err != nil {
		return signedOutHint(err)
	}

	for a.Feed().Page() < int(cmd.Int("pages")) {
		before := a.Feed().Len()
		if err := a.Feed().FetchNextPage(ctx); err != nil {
			return err
		}
		if a.Feed().Len() == before {
			break
		}
	}

	out := cmd.Root().Writer
	for _, p := range a.Feed().Photos() {
		writePhoto(out, p)
	}
	return nil
}

func likeCommand() *cli.Command {
	return &cli.Command{
		Name:      "like",
		Usage:     "like (or unlike) a photo from the feed",
		ArgsUsage: "<photo-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "unlike",
				Usage: "remove the like instead",
			},
			&cli.IntFlag{
				Name:  "max-pages",
				Usage: "pages to search for the photo",
				Value: 5,
			},
		},
		Action: withApp(likeAction),
	}
}

func likeAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	id := cmd.Args().First()
	if id == "" {
		return errors.New("missing photo id")
	}

	index, err := findPhoto(ctx, a.Feed(), id, int(cmd.Int("max-pages")))
	if err != nil {
		return signedOutHint(err)
	}
	if index < 0 {
		return fmt.Errorf("photo %s not found in the first %d pages", id, cmd.Int("max-pages"))
	}

	out := cmd.Root().Writer
	unsubscribe := a.Feed().Subscribe(func(c feed.Change) {
		if c.Reload() {
			return
		}
		if p, ok := a.Feed().Photo(c.Index); ok {
			writePhoto(out, p)
		}
	})
	defer unsubscribe()

	return a.Feed().SetLiked(ctx, id, !cmd.Bool("unlike"))
}

// findPhoto loads pages until the photo with id is in the feed and returns its
// position, or -1 when maxPages were loaded without finding it.
func findPhoto(ctx context.Context, f *feed.Service, id string, maxPages int) (int, error) {
	for {
		for i, p := range f.Photos() {
			if p.ID == id {
				return i, nil
			}
		}
		if f.Page() >= maxPages {
			return -1, nil
		}

		before := f.Len()
		if err := f.FetchNextPage(ctx); err != nil {
			return -1, err
		}
		if f.Len() == before {
			return -1, nil
		}
	}
}

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:   "profile",
		Usage:  "show the signed-in user's profile",
		Action: withApp(profileAction),
	}
}

func profileAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	p, err := a.LoadProfile(ctx)
	if err != nil {
		return signedOutHint(err)
	}

	out := cmd.Root().Writer
	fmt.Fprintln(out, formatProfileName(p.Name, p.LoginName))
	if p.Bio != "" {
		fmt.Fprintln(out, p.Bio)
	}
	if avatar, ok := a.Profile().AvatarURL(); ok {
		fmt.Fprintf(out, "avatar: %s\n", avatar)
	}
	return nil
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "forget the token and all loaded data",
		Action: withApp(logoutAction),
	}
}

func logoutAction(ctx context.Context, cmd *cli.Command, a *app.App, _ *app.Config) error {
	out := cmd.Root().Writer
	unsubscribe := a.Coordinator().SubscribeLoggedOut(func(ev session.LoggedOut) {
		if ev.Err == nil {
			fmt.Fprintln(out, "Signed out")
		}
	})
	defer unsubscribe()

	return a.Logout(ctx)
}

func writePhoto(w io.Writer, p feed.Photo) {
	mark := " "
	if p.Liked {
		mark = "♥"
	}
	created := "-"
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.Format("2006-01-02")
	}
	fmt.Fprintf(w, "%s %-12s %5dx%-5d %s  %s\n", mark, p.ID, p.Width, p.Height, created, p.FullURL)
	if p.Description != "" {
		fmt.Fprintf(w, "    %s\n", p.Description)
	}
}

func signedOutHint(err error) error {
	if errors.Is(err, app.ErrSignedOut) || errors.Is(err, photoapi.ErrUnauthorized) {
		return errSignedOutHint
	}
	return err
}
