// Package main provides the buildtest CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/babydragon/buildtest/container"
	"github.com/babydragon/buildtest/internal/config"
	"github.com/babydragon/buildtest/relay"
	"golang.org/x/sync/errgroup"
)

var (
	version = "dev"
)

func main() {
	cmd := "demo"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "demo":
		demoCmd(args)
	case "build":
		buildCmd(args)
	case "run":
		runCmd(args)
	case "version":
		fmt.Printf("buildtest %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`buildtest - build an image and run a command in a fresh container

Usage:
  buildtest <command> [options]

Commands:
  demo      Build the configured image, then run the configured command (default)
  build     Build an image from the configured Dockerfile
  run       Run a command in a fresh container of an image
  version   Print version information
  help      Show this help message

Examples:
  buildtest
  buildtest build myimage:dev
  buildtest run alpine:3.15 echo "in container"
  buildtest run -config buildtest.yaml

Configuration is read from -config, else $BUILDTEST_CONFIG.`)
}

// demoCmd builds the configured image and then runs the configured command,
// reporting both outcomes.
func demoCmd(args []string) {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)

	err := pipeline(cfg, func(ctx context.Context, m *container.Manager, tx *relay.Sender) error {
		buildErr := m.Build(ctx, cfg.Build.Image, tx)
		if buildErr != nil {
			slog.Error("build failed", "image", cfg.Build.Image, "error", buildErr)
		}

		_, runErr := m.Run(ctx, cfg.Run.Image, cfg.Run.Command, tx)
		if runErr != nil {
			slog.Error("run failed", "image", cfg.Run.Image, "error", runErr)
		}

		return errors.Join(buildErr, runErr)
	})
	exitOnError(err)
}

// buildCmd builds an image, tagged with the first argument or build.image.
func buildCmd(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")

	fs.Usage = func() {
		fmt.Println(`Usage: buildtest build [options] [name]

Build an image from the configured Dockerfile and tag it name.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	name := cfg.Build.Image
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}

	err := pipeline(cfg, func(ctx context.Context, m *container.Manager, tx *relay.Sender) error {
		return m.Build(ctx, name, tx)
	})
	exitOnError(err)
}

// runCmd runs a command in a fresh container. Image and command default to
// run.image and run.command.
func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to a YAML config file")

	fs.Usage = func() {
		fmt.Println(`Usage: buildtest run [options] [image [command...]]

Pull image, run command in a new container and remove it. When the command
exits non-zero its output is printed.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	image, command := cfg.Run.Image, cfg.Run.Command
	if fs.NArg() > 0 {
		image = fs.Arg(0)
	}
	if fs.NArg() > 1 {
		command = fs.Args()[1:]
	}

	err := pipeline(cfg, func(ctx context.Context, m *container.Manager, tx *relay.Sender) error {
		res, err := m.Run(ctx, image, command, tx)
		if err != nil {
			return err
		}
		if res.Exited {
			slog.Info("container finished", "image", res.Image, "status_code", res.StatusCode)
		}
		return nil
	})
	exitOnError(err)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	level, _ := cfg.Log.SlogLevel()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return cfg
}

// pipeline connects to the engine, starts the relay consumer and runs steps
// with a sender. The sender is closed when steps return, which lets the
// consumer drain what is left and stop.
func pipeline(cfg *config.Config, steps func(ctx context.Context, m *container.Manager, tx *relay.Sender) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := container.NewManager(
		container.WithHost(cfg.Engine.Host),
		container.WithAPIVersion(cfg.Engine.APIVersion),
		container.WithDockerfile(cfg.Build.Dockerfile),
	)
	if err != nil {
		return err
	}
	defer m.Close()

	if !m.IsAvailable() {
		return container.ErrEngineUnavailable
	}

	handler, err := relay.NewHandler(cfg.Relay.Sink, os.Stdout)
	if err != nil {
		return err
	}
	r, tx := relay.New(cfg.Relay.Capacity)

	var g errgroup.Group
	g.Go(func() error {
		return r.Drain(ctx, handler)
	})
	g.Go(func() error {
		defer tx.Close()
		return steps(ctx, m, tx)
	})
	return g.Wait()
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
