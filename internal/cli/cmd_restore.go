package cli

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

// RestoreCmd builds the "restore" subcommand.
func RestoreCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("restore", flag.ContinueOnError)
	sparse := flags.Bool("sparse", false, "Leave holes instead of zero-filling sparse blocks")
	force := flags.Bool("force", false, "Overwrite an existing restore target")

	return &Command{
		Flags: flags,
		Usage: "restore [--sparse] [--force] <version_uid> <target-url> [flags]",
		Short: "Restore a version to a target URL",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("restore: expected <version_uid> <target-url>, got %d args", len(args))
			}

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			if err := app.Engine.Restore(ctx, args[0], args[1], *sparse, *force); err != nil {
				return err
			}

			o.Println("restored", args[0], "to", args[1])

			return nil
		},
	}
}
