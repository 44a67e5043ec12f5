/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/luminax/engine"
	"github.com/spaghettifunk/luminax/engine/config"
	"github.com/spaghettifunk/luminax/engine/core"
	"github.com/spaghettifunk/luminax/testbed"
)

func main() {
	if err := run(); err != nil {
		core.LogError(err.Error())
		os.Exit(1)
	}
}

func run() error {
	path := flag.String("config", config.DefaultFile, "path of the TOML configuration")
	backend := flag.String("backend", "", "overrides renderer.backend (vulkan or headless)")
	frames := flag.Uint64("frames", 0, "overrides application.max_frames")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Renderer.Backend = *backend
	}
	if *frames != 0 {
		cfg.Application.MaxFrames = *frames
	}
	core.SetLogLevel(core.LogLevel(cfg.Application.LogLevel))

	// capture sigterm and other system call here
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	e, err := engine.New(cfg, testbed.NewBoxGrid())
	if err != nil {
		return err
	}
	if err := e.Initialize(ctx); err != nil {
		_ = e.Shutdown(context.Background())
		return err
	}

	runErr := e.Run(ctx)
	// The GPU is drained even when the run was interrupted.
	if err := e.Shutdown(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
