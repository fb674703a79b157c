package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ramonehamilton/gammatrain/internal/api"
	"github.com/ramonehamilton/gammatrain/internal/weights"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var c common
	c.register(fs)
	port := fs.Int("port", 0, "API server port (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, err := c.load()
	if err != nil {
		return err
	}
	if *port > 0 {
		e.cfg.Server.Port = *port
	}

	watcher, err := weights.NewWatcher(e.cfg.Model.Path, e.registry)
	if err != nil {
		return err
	}

	server := api.NewServer(&api.Config{
		Port:           e.cfg.Server.Port,
		AllowedOrigins: e.cfg.Server.AllowedOrigins,
	}, watcher)
	watcher.OnReload(server.ModelReloaded)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Printf("Weights watcher stopped: %v", err)
		}
	}()

	fmt.Printf("Serving %s at http://localhost:%d\n", e.cfg.Model.Path, e.cfg.Server.Port)
	return server.ListenAndServe(ctx)
}
