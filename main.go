/*
Batch mesh decimator: mirrors a tree of STL files into an output tree,
keeping a fixed fraction of each mesh's triangles.
*/
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/decimator/engine"
	"github.com/spaghettifunk/decimator/engine/config"
	"github.com/spaghettifunk/decimator/engine/core"
)

const (
	exitOK            = 0
	exitFailure       = 1
	exitConfiguration = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if err := config.LoadDotEnv(); err != nil {
		core.LogError("%v", err)
		return exitConfiguration
	}
	cfg, opts, err := config.Load(args, os.LookupEnv, os.Stderr)
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return exitOK
		}
		core.LogError("%v", err)
		return exitConfiguration
	}
	if opts.WriteConfig != "" {
		if err := cfg.WriteFile(opts.WriteConfig); err != nil {
			core.LogError("write config: %v", err)
			return exitFailure
		}
	}

	e, err := engine.New(cfg)
	if err != nil {
		core.LogError("%v", err)
		return exitCode(err)
	}
	if err := e.Initialize(); err != nil {
		core.LogError("%v", err)
		return exitCode(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	// cancel the run between files on sigterm and friends
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := e.Run(ctx)
	if err := e.Shutdown(); err != nil {
		core.LogError("%v", err)
	}
	if runErr != nil {
		if !errors.Is(runErr, engine.ErrFilesFailed) {
			core.LogError("%v", runErr)
		}
		return exitCode(runErr)
	}
	return exitOK
}

func exitCode(err error) int {
	if errors.Is(err, core.ErrConfiguration) {
		return exitConfiguration
	}
	return exitFailure
}
