package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/backy2/backy2/internal/config"

	flag "github.com/spf13/pflag"
)

// Run is the main entry point. Returns the process exit code.
// sigCh can be nil if signal handling is not needed (e.g. in tests).
func Run(out, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("backy2", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagMetaPath := globalFlags.String("meta-path", "", "Override the meta store `path`")
	flagDataDir := globalFlags.String("data-dir", "", "Override the data backend `dir`")
	flagBlockSize := globalFlags.Int64("block-size", 0, "Override the block `size` in bytes")
	flagLogPath := globalFlags.String("log-path", "", "Write structured logs to `file` with rotation, instead of stderr")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return ExitUnexpectedError
	}

	cfg, err := config.LoadConfig(config.LoadConfigInput{
		WorkDirOverride:   *flagCwd,
		ConfigPath:        *flagConfig,
		MetaPathOverride:  *flagMetaPath,
		DataDirOverride:   *flagDataDir,
		BlockSizeOverride: *flagBlockSize,
		LogPathOverride:   *flagLogPath,
		Env:               env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return ExitUnexpectedError
	}

	commands := allCommands(cfg)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)
		return ExitSuccess
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return ExitUnexpectedError
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return ExitUnexpectedError
	}

	cmdIO := NewIO(out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")
		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")
		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")
		return 130
	}
}

// allCommands returns all commands in display order. Dependencies are
// captured via closures in each command constructor.
func allCommands(cfg config.Config) []*Command {
	return []*Command{
		BackupCmd(cfg),
		RestoreCmd(cfg),
		RmCmd(cfg),
		ScrubCmd(cfg),
		CleanupCmd(cfg),
		LsCmd(cfg),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help               Show help
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
  --meta-path <path>       Override the meta store path
  --data-dir <dir>         Override the data backend directory
  --block-size <size>      Override the block size in bytes
  --log-path <file>        Write structured logs to file with rotation`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: backy2 [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'backy2 --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "backy2 - deduplicating, content-addressed block backup engine")
	fprintln(w)
	fprintln(w, "Usage: backy2 [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
