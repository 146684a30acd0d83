// Command send-email sends a single message using credentials resolved from
// a config file, a .env file and the environment.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := &app{
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		lookupEnv: os.LookupEnv,
		fs:        afero.NewOsFs(),
	}
	os.Exit(a.run(ctx, os.Args[1:]))
}
