package cli

import (
	"context"
	"fmt"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

// BackupCmd builds the "backup" subcommand.
func BackupCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("backup", flag.ContinueOnError)
	name := flags.String("name", "", "Version name")
	from := flags.String("from", "", "Base version_uid for an incremental backup")
	hintsPath := flags.String("hints", "", "Path to a JSON hints file (offset/length/exists records)")

	return &Command{
		Flags: flags,
		Usage: "backup --name <name> [--from <version_uid>] [--hints <file>] <source-url> [flags]",
		Short: "Back up a source URL into a new version",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("backup: expected exactly one source URL argument, got %d", len(args))
			}

			if *name == "" {
				return fmt.Errorf("backup: --name is required")
			}

			hs, err := loadHintsFile(*hintsPath)
			if err != nil {
				return err
			}

			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			uid, err := app.Engine.Backup(ctx, *name, args[0], hs, *from)
			if err != nil {
				return err
			}

			o.Println(uid)

			return nil
		},
	}
}
