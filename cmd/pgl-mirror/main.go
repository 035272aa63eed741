package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulschiretz/pgl-mirror/cmd"
	"github.com/paulschiretz/pgl-mirror/pkg/buildinfo"
	"github.com/paulschiretz/pgl-mirror/pkg/flagparse"
	"github.com/paulschiretz/pgl-mirror/pkg/plog"
)

// run dispatches the parsed command. It is separated from main so the exit
// code handling stays in one place.
func run(ctx context.Context, args []string) error {
	command, flagMap, err := flagparse.Parse(args)
	if err != nil {
		return err
	}

	// An explicit -log-level applies to config loading and validation too.
	if level, ok := flagMap["log-level"].(string); ok {
		plog.SetLevel(plog.LevelFromString(level))
	}

	switch command {
	case flagparse.None:
		return nil // Usage was printed.
	case flagparse.Version:
		return cmd.RunVersion(os.Stdout)
	case flagparse.Init:
		return cmd.RunInit(ctx, flagMap)
	default:
		return cmd.RunMirror(ctx, command, flagMap)
	}
}

func main() {
	// SIGINT and SIGTERM cancel the context: the current entry finishes, the
	// replica lock is released and the process exits with status 0.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		plog.Error(buildinfo.Name+" failed", "error", err)
		stop()
		os.Exit(1)
	}
}
