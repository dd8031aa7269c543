package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/beka-birhanu/mazewar-server/config"
	"github.com/beka-birhanu/mazewar-server/game"
	"github.com/beka-birhanu/mazewar-server/logging"
	"github.com/beka-birhanu/mazewar-server/maze"
	"github.com/beka-birhanu/mazewar-server/player"
	"github.com/beka-birhanu/mazewar-server/service"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	level := logging.ParseLevel(cfg.LogLevel)
	appLog, err := logging.New("APP", config.ColorGreen, cfg.LogDir, level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	gameLog, err := logging.New("GAME", config.ColorCyan, cfg.LogDir, level)
	if err != nil {
		appLog.Errorw("creating game logger", "err", err)
		os.Exit(1)
	}
	serverLog, err := logging.New("SERVER", config.ColorBlue, cfg.LogDir, level)
	if err != nil {
		appLog.Errorw("creating server logger", "err", err)
		os.Exit(1)
	}

	template := maze.DefaultTemplate
	if cfg.TemplatePath != "" {
		template, err = readTemplate(cfg.TemplatePath)
		if err != nil {
			appLog.Errorw("loading maze template", "path", cfg.TemplatePath, "err", err)
			os.Exit(1)
		}
	}

	m, err := maze.New(template)
	if err != nil {
		appLog.Errorw("building maze", "err", err)
		os.Exit(1)
	}
	appLog.Infow("maze ready", "rows", m.Rows(), "cols", m.Cols())

	g := game.New(m, player.NewTable(), gameLog)

	srv, err := service.NewServer(cfg.Port, g, serverLog)
	if err != nil {
		appLog.Errorw("starting server", "err", err)
		os.Exit(1)
	}
	appLog.Infow("listening", "addr", srv.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve() }()

	select {
	case sig := <-sigCh:
		appLog.Infow("received shutdown signal", "signal", sig.String())
	case err := <-serveErrCh:
		appLog.Errorw("accept loop exited unexpectedly", "err", err)
	}

	if err := srv.Stop(); err != nil {
		appLog.Warnw("stopping listener", "err", err)
	}
	appLog.Info("all connections drained, exiting")
}

// readTemplate loads a maze template file as one row per line, the Go
// analogue of main.c's load-from-file path when -t is given.
func readTemplate(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("main: read template: %w", err)
	}

	raw := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		lines[i] = strings.TrimRight(l, "\r")
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("main: template %q is empty", path)
	}
	return lines, nil
}
