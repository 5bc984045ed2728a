package cli

import (
	"context"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

// CleanupCmd builds the "cleanup" subcommand, dispatching to either the
// fast (refcount-grace) or full (authoritative reconciler) sweep.
func CleanupCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	full := flags.Bool("full", false, "Run the slow, authoritative orphan sweep instead of the fast one")
	graceSeconds := flags.Int64("grace-seconds", config.DefaultCleanupGraceSeconds, "cleanup_fast grace window")
	prefix := flags.String("prefix", "", "cleanup_full uid prefix filter")

	return &Command{
		Flags: flags,
		Usage: "cleanup [--full] [--grace-seconds <n>] [--prefix <p>] [flags]",
		Short: "Reclaim blobs with a zero refcount",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if *full {
				if err := app.Engine.CleanupFull(ctx, *prefix); err != nil {
					return err
				}

				o.Println("cleanup_full complete")

				return nil
			}

			if err := app.Engine.CleanupFast(ctx, *graceSeconds); err != nil {
				return err
			}

			o.Println("cleanup_fast complete")

			return nil
		},
	}
}
