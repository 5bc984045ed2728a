package cli

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

const defaultScrubPercentile = 100

// ScrubCmd builds the "scrub" subcommand.
func ScrubCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("scrub", flag.ContinueOnError)
	source := flags.String("source", "", "Optional live source URL to additionally compare against (detects drift)")
	percentile := flags.Int("percentile", defaultScrubPercentile, "Percentage of blocks to sample (1-100)")

	return &Command{
		Flags: flags,
		Usage: "scrub [--source <url>] [--percentile <n>] <version_uid> [flags]",
		Short: "Verify a version's blocks against stored checksums",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("scrub: expected exactly one version_uid argument, got %d", len(args))
			}

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			sound, err := app.Engine.Scrub(ctx, args[0], *source, *percentile)
			if err != nil {
				return err
			}

			if !sound {
				o.Warn(fmt.Sprintf("version %s failed scrub", args[0]))
			}

			o.Println("sound:", sound)

			return nil
		},
	}
}
