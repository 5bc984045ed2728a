package cli

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

const defaultMinAgeDays = 1

// RmCmd builds the "rm" subcommand.
func RmCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("rm", flag.ContinueOnError)
	force := flags.Bool("force", false, "Bypass the minimum-age guard")
	minAgeDays := flags.Int("min-age-days", defaultMinAgeDays, "Minimum version age before rm is allowed")

	return &Command{
		Flags: flags,
		Usage: "rm [--force] [--min-age-days <n>] <version_uid> [flags]",
		Short: "Remove a version's metadata",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("rm: expected exactly one version_uid argument, got %d", len(args))
			}

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.Engine.Remove(ctx, args[0], *force, *minAgeDays); err != nil {
				return err
			}

			o.Println("removed", args[0])

			return nil
		},
	}
}
