// Stream Lights - audience-controlled Hue lighting for Twitch streams.
//
// Viewers redeem channel-point rewards or type chat commands; the EventSub
// websocket delivers them and the dispatcher turns them into Hue bridge
// commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/nerrad567/stream-lights-core/internal/infrastructure/config"
	"github.com/nerrad567/stream-lights-core/internal/infrastructure/logging"
)

// Version information, set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configEnvVar      = "STREAMLIGHTS_CONFIG"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath  string
	showVersion bool
}

// parseFlags reads the command line. --config wins over STREAMLIGHTS_CONFIG,
// which wins over the default path.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := pflag.NewFlagSet("streamlights", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (env "+configEnvVar+")")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv(configEnvVar)
	}
	if opts.configPath == "" {
		opts.configPath = defaultConfigPath
	}
	return opts, nil
}

// run is the application entry point, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown (signal or remote close), otherwise the
//     failure that stopped the service
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, stdout)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "streamlights %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()
	log.Info("starting Stream Lights",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath, "level", cfg.Logging.Level)

	app, err := start(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	err = app.serve(ctx)
	if ctx.Err() != nil {
		log.Info("Stream Lights stopped")
		return nil
	}
	return err
}
