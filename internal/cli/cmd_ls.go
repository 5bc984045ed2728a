package cli

import (
	"context"
	"strconv"
	"strings"

	"github.com/backy2/backy2/internal/config"
	"github.com/backy2/backy2/internal/metastore"

	"github.com/mattn/go-isatty"
	flag "github.com/spf13/pflag"
)

const defaultLsFields = "uid,name,date,size,valid"

// LsCmd builds the "ls" subcommand: a name filter and a column selector
// over the version table, since table rendering is the CLI's job, not
// the Engine's (SPEC_FULL.md §3.8). --interactive drops into a live
// filter prompt instead of printing the whole table at once.
func LsCmd(cfg config.Config) *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	name := flags.String("name", "", "Only list versions whose name contains this substring")
	fields := flags.String("fields", defaultLsFields, "Comma-separated column list")
	interactive := flags.Bool("interactive", false, "Filter versions live at a prompt instead of printing them all")

	return &Command{
		Flags: flags,
		Usage: "ls [--name <substr>] [--fields <cols>] [--interactive] [flags]",
		Short: "List versions",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			app, err := NewApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			versions, err := app.meta.GetVersions(ctx)
			if err != nil {
				return err
			}

			cols := strings.Split(*fields, ",")

			if *interactive {
				if f, ok := o.stdoutFile(); ok && isatty.IsTerminal(f.Fd()) {
					return runInteractiveLs(o, versions, cols)
				}
			}

			for _, v := range versions {
				if *name != "" && !strings.Contains(v.Name, *name) {
					continue
				}

				o.Println(formatVersionRow(v, cols))
			}

			return nil
		},
	}
}

func formatVersionRow(v metastore.Version, cols []string) string {
	fieldValue := map[string]string{
		"uid":        v.UID,
		"name":       v.Name,
		"date":       v.Date.Format("2006-01-02 15:04:05"),
		"size":       strconv.FormatInt(v.Size, 10),
		"size_bytes": strconv.FormatInt(v.SizeBytes, 10),
		"valid":      strconv.FormatBool(v.Valid),
	}

	out := make([]string, 0, len(cols))

	for _, c := range cols {
		out = append(out, fieldValue[strings.TrimSpace(c)])
	}

	return strings.Join(out, "\t")
}
