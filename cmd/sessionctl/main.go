package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/KKQanT/cringe-alert-v2/internal/app"
	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

// CLI is the operator tool for inspecting stored sessions.
type CLI struct {
	List      ListCmd      `cmd:"" help:"List sessions of an owner, newest first"`
	Show      ShowCmd      `cmd:"" help:"Print a full session document"`
	Context   ContextCmd   `cmd:"" help:"Print the coach context of a session"`
	Transcode TranscodeCmd `cmd:"" help:"Convert an uploaded recording to mp4 synchronously"`
	Migrate   MigrateCmd   `cmd:"" help:"Create or update the database schema"`
}

type ListCmd struct {
	Owner string `help:"Owner id" default:"anonymous"`
	Limit int    `help:"Maximum sessions to print" default:"20"`
}

func (c *ListCmd) Run() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		ctx = ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: c.Owner})
		out, err := a.Services.Session.List(ctx, c.Limit)
		if err != nil {
			return err
		}
		return printJSON(out)
	})
}

type ShowCmd struct {
	ID string `arg:"" help:"Session id"`
}

func (c *ShowCmd) Run() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		sess, err := a.Services.Session.Get(ctx, c.ID)
		if err != nil {
			return err
		}
		a.Services.Upload.RefreshURLs(ctx, sess)
		return printJSON(sess)
	})
}

type ContextCmd struct {
	ID string `arg:"" help:"Session id"`
}

func (c *ContextCmd) Run() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		out, err := a.Services.Session.Context(ctx, c.ID)
		if err != nil {
			return err
		}
		return printJSON(out)
	})
}

type TranscodeCmd struct {
	Blob  string `arg:"" help:"Blob name of the uploaded recording"`
	Owner string `help:"Owner notified when the conversion finishes"`
}

func (c *TranscodeCmd) Run() error {
	return withApp(func(ctx context.Context, a *app.App) error {
		if err := a.Services.Conversion.Convert(ctx, services.ConversionJob{BlobName: c.Blob, OwnerID: c.Owner}); err != nil {
			return err
		}
		fmt.Printf("converted %s\n", c.Blob)
		return nil
	})
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run() error {
	log, err := logger.New(logMode())
	if err != nil {
		return err
	}
	defer log.Sync()
	svc, err := db.NewService(log, db.ConfigFromEnv())
	if err != nil {
		return err
	}
	defer svc.Close()
	if err := db.AutoMigrateAll(svc.DB()); err != nil {
		return err
	}
	fmt.Printf("migrated %s database\n", svc.Driver())
	return nil
}

func withApp(fn func(ctx context.Context, a *app.App) error) error {
	a, err := app.New()
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()
	return fn(context.Background(), a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logMode() string {
	if m := os.Getenv("LOG_MODE"); m != "" {
		return m
	}
	return "development"
}

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("sessionctl"),
		kong.Description("Inspect and maintain coaching sessions"),
		kong.UsageOnError(),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
