package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/peerprobe/internal/config"
	"github.com/danmuck/peerprobe/internal/handshake"
	"github.com/danmuck/peerprobe/internal/logging"
	"github.com/danmuck/peerprobe/internal/observability"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/report"
	"github.com/rs/zerolog/log"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

var errUsage = errors.New("usage")

type invocation struct {
	opts        options
	writeConfig string
	force       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	inv, err := parseArgs(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "peerprobe: %v\n", err)
		return exitUsage
	}
	logging.ConfigureRuntime()

	if inv.writeConfig != "" {
		if err := config.WriteTemplate(inv.writeConfig, inv.force); err != nil {
			fmt.Fprintf(stderr, "peerprobe: %v\n", err)
			return exitFailure
		}
		log.Info().Str("path", inv.writeConfig).Msg("wrote peerprobe config template")
		return exitOK
	}

	opts := inv.opts
	if err := opts.Target.Validate(); err != nil {
		fmt.Fprintf(stderr, "peerprobe: %v\n", err)
		return exitUsage
	}
	observability.RegisterMetrics()
	log.Debug().
		Str("address", opts.Target.Address).
		Str("network", opts.Engine.Network.String()).
		Dur("timeout", opts.Engine.HandshakeTimeout).
		Msg("peerprobe starting handshake")

	res := handshake.Run(ctx, opts.Target, opts.Engine)
	if err := report.Write(stdout, report.New(res), opts.Format); err != nil {
		log.Error().Err(err).Msg("peerprobe report write failed")
	}

	if opts.MetricsFile != "" {
		if err := observability.WriteTextfile(opts.MetricsFile); err != nil {
			log.Error().Err(err).Str("path", opts.MetricsFile).Msg("peerprobe metrics write failed")
		}
	}
	if !res.OK() {
		return exitFailure
	}
	return exitOK
}

// parseArgs builds the run options: defaults, then the config file, then any
// flag set explicitly on the command line. A single positional argument is
// taken as the address.
func parseArgs(args []string, stderr io.Writer) (invocation, error) {
	fs := flag.NewFlagSet("peerprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: peerprobe [flags] [address]")
		fs.PrintDefaults()
	}

	d := handshake.DefaultConfig()
	address := fs.String("address", "", "remote node host:port")
	userAgent := fs.String("user-agent", defaultUserAgent, "user agent advertised in our version message")
	configPath := fs.String("config", "", "TOML config path")
	network := fs.String("network", "mainnet", "network magic: mainnet|testnet3|regtest|signet|simnet")
	timeout := fs.Duration("timeout", d.HandshakeTimeout, "handshake deadline after connect")
	connectTimeout := fs.Duration("connect-timeout", d.ConnectTimeout, "TCP connect timeout")
	writeTimeout := fs.Duration("write-timeout", d.WriteTimeout, "per-message write deadline")
	readBuffer := fs.Int("read-buffer", d.ReadBufferSize, "initial read buffer size in bytes")
	format := fs.String("format", string(report.FormatText), "output format: text|json|toml")
	metricsFile := fs.String("metrics-file", "", "write prometheus metrics to this file after the run")
	writeConfig := fs.String("write-config", "", "write a config template to this path and exit")
	force := fs.Bool("force", false, "overwrite an existing file with -write-config")

	if err := fs.Parse(args); err != nil {
		return invocation{}, err
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return invocation{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args()[1:])
	}

	inv := invocation{
		opts:        defaultOptions(),
		writeConfig: strings.TrimSpace(*writeConfig),
		force:       *force,
	}
	if inv.writeConfig != "" {
		return inv, nil
	}

	if *configPath != "" {
		opts, err := loadFileConfig(*configPath, inv.opts)
		if err != nil {
			return invocation{}, err
		}
		inv.opts = opts
	}

	var flagErr error
	fs.Visit(func(f *flag.Flag) {
		if flagErr != nil {
			return
		}
		switch f.Name {
		case "address":
			inv.opts.Target.Address = strings.TrimSpace(*address)
		case "user-agent":
			inv.opts.Target.UserAgent = *userAgent
		case "network":
			n, err := codec.ParseNetwork(*network)
			if err != nil {
				flagErr = err
				return
			}
			inv.opts.Engine.Network = n
		case "timeout":
			inv.opts.Engine.HandshakeTimeout = *timeout
		case "connect-timeout":
			inv.opts.Engine.ConnectTimeout = *connectTimeout
		case "write-timeout":
			inv.opts.Engine.WriteTimeout = *writeTimeout
		case "read-buffer":
			inv.opts.Engine.ReadBufferSize = *readBuffer
		case "format":
			parsed, err := report.ParseFormat(*format)
			if err != nil {
				flagErr = err
				return
			}
			inv.opts.Format = parsed
		case "metrics-file":
			inv.opts.MetricsFile = strings.TrimSpace(*metricsFile)
		}
	})
	if flagErr != nil {
		return invocation{}, flagErr
	}
	if fs.NArg() == 1 {
		inv.opts.Target.Address = strings.TrimSpace(fs.Arg(0))
	}
	if inv.opts.Target.Address == "" {
		fs.Usage()
		return invocation{}, fmt.Errorf("%w: address is required", errUsage)
	}
	for name, v := range map[string]time.Duration{
		"timeout":         inv.opts.Engine.HandshakeTimeout,
		"connect-timeout": inv.opts.Engine.ConnectTimeout,
		"write-timeout":   inv.opts.Engine.WriteTimeout,
	} {
		if v <= 0 {
			return invocation{}, fmt.Errorf("%w: %s must be positive", errUsage, name)
		}
	}
	return inv, nil
}
