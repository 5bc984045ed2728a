// Command backy2 is the CLI surface for the backup engine: backup,
// restore, rm, scrub, cleanup, and ls.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/backy2/backy2/internal/cli"
)

func main() {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	os.Exit(cli.Run(os.Stdout, os.Stderr, os.Args, env, sigCh))
}
