package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/Brownie44l1/myownwebserver/internal/config"
	"github.com/Brownie44l1/myownwebserver/internal/logfile"
	"github.com/Brownie44l1/myownwebserver/internal/resource"
	"github.com/Brownie44l1/myownwebserver/internal/server"
)

var errColor = color.New(color.FgRed)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	console := slog.New(slog.NewTextHandler(stdout, nil))

	cfg, err := config.Parse(args, nil)
	if err != nil {
		report(stdout, err)
		return err
	}

	settingsPath, explicit := config.SettingsPath()
	if cfg.Settings, err = config.LoadSettings(settingsPath, explicit); err != nil {
		report(stdout, err)
		return err
	}

	logPath := cfg.Settings.LogFile
	if logPath == "" {
		if logPath, err = logfile.DefaultPath(); err != nil {
			report(stdout, err)
			return err
		}
	}
	logHandler := logfile.New(logPath, console.Handler())

	root := osfs.New(cfg.WebRoot, osfs.WithBoundOS())
	srv := server.New(cfg, resource.NewLoader(root), server.Options{
		Logger:  slog.New(logHandler),
		Console: console,
		LogFile: logHandler,
	})
	if err := srv.Start(); err != nil {
		report(stdout, err)
		return err
	}
	console.Info("listening", "addr", srv.Addr().String(), "root", cfg.WebRoot, "log", logPath)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := cfg.Settings.TFTPAddr; addr != "" {
		mirror := server.NewMirror(srv, cfg.Settings.TFTPTimeout.Duration)
		go func() {
			if err := mirror.ListenAndServe(addr); err != nil {
				console.Error("tftp mirror stopped", "addr", addr, "error", err)
			}
		}()
		defer mirror.Shutdown()
	}

	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	console.Info("stopped", "metrics", srv.Metrics.Snapshot())
	return nil
}

// report prints a diagnostic for an operator in red
func report(w io.Writer, err error) {
	errColor.Fprintln(w, message(err))
}

func message(err error) string {
	switch {
	case errors.Is(err, config.ErrArgCount):
		return "Please provide 3 command-line arguments."
	case errors.Is(err, config.ErrUsage):
		return "Please provide 3 mandatory command-line arguments. (-webRoot,-webIP,-webPort)"
	case errors.Is(err, config.ErrWebRoot):
		return "Sorry, the provided webRoot does not exist!"
	case errors.Is(err, config.ErrInvalidIP):
		return "Sorry, the provided IPAddress is invalid!"
	case errors.Is(err, config.ErrIPNotOnHost):
		return "Sorry, the provided IPAddress is not available on the current machine!"
	case errors.Is(err, config.ErrInvalidPort):
		return "Sorry, the provided port is invalid!"
	default:
		return "Sorry, " + err.Error()
	}
}
