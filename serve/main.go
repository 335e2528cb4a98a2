// Command minderd is the minder daemon.
// It listens on a stream socket for natural-language todo and query commands,
// routes them through a language model, and returns structured responses.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	minder "github.com/hollowlog/minder"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request and response to stderr")
	listen := flag.String("listen", "", "listen address (unix://<path> or tcp://<host>:<port>)")
	flag.Parse()

	if *showVersion {
		fmt.Println("minderd", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := minder.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = minder.DefaultConfig()
	}
	for _, w := range minder.ValidateConfig(cfg) {
		slog.Warn("config warning", "warning", w)
	}

	listenAddr := *listen
	if listenAddr == "" {
		listenAddr = minder.ResolveListen(cfg)
	}

	slog.Info("starting", "listen", listenAddr)

	srv, err := NewServer(listenAddr)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
