package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/peerprobe/internal/config"
	"github.com/danmuck/peerprobe/internal/handshake"
	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/report"
)

const defaultUserAgent = "/peerprobe:0.1.0/"

type options struct {
	Target      handshake.Target
	Engine      handshake.Config
	Format      report.Format
	MetricsFile string
}

func defaultOptions() options {
	return options{
		Target: handshake.Target{UserAgent: defaultUserAgent},
		Engine: handshake.DefaultConfig(),
		Format: report.FormatText,
	}
}

type fileConfig struct {
	Address          string `toml:"address"`
	UserAgent        string `toml:"user_agent"`
	Network          string `toml:"network"`
	Timeout          string `toml:"timeout"`
	TimeoutMS        int64  `toml:"timeout_ms"`
	ConnectTimeout   string `toml:"connect_timeout"`
	ConnectTimeoutMS int64  `toml:"connect_timeout_ms"`
	WriteTimeout     string `toml:"write_timeout"`
	ReadBufferSize   int    `toml:"read_buffer_size"`
	Format           string `toml:"format"`
	MetricsFile      string `toml:"metrics_file"`
}

// loadFileConfig overlays keys present in path onto opts. Absent keys keep the
// current value.
func loadFileConfig(path string, opts options) (options, error) {
	if _, err := config.LoadProbeFile(path); err != nil {
		return options{}, err
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return options{}, fmt.Errorf("load peerprobe config: %w", err)
	}

	if meta.IsDefined("address") {
		opts.Target.Address = strings.TrimSpace(raw.Address)
	}

	if meta.IsDefined("user_agent") {
		opts.Target.UserAgent = raw.UserAgent
	}

	if meta.IsDefined("network") {
		network, err := codec.ParseNetwork(raw.Network)
		if err != nil {
			return options{}, err
		}
		opts.Engine.Network = network
	}

	if meta.IsDefined("timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Timeout))
		if err != nil {
			return options{}, fmt.Errorf("parse timeout: %w", err)
		}
		opts.Engine.HandshakeTimeout = d
	}

	if meta.IsDefined("timeout_ms") {
		opts.Engine.HandshakeTimeout = time.Duration(raw.TimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return options{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		opts.Engine.ConnectTimeout = d
	}

	if meta.IsDefined("connect_timeout_ms") {
		opts.Engine.ConnectTimeout = time.Duration(raw.ConnectTimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return options{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		opts.Engine.WriteTimeout = d
	}

	if meta.IsDefined("read_buffer_size") {
		opts.Engine.ReadBufferSize = raw.ReadBufferSize
	}

	if meta.IsDefined("format") {
		format, err := report.ParseFormat(raw.Format)
		if err != nil {
			return options{}, err
		}
		opts.Format = format
	}

	if meta.IsDefined("metrics_file") {
		opts.MetricsFile = strings.TrimSpace(raw.MetricsFile)
	}

	return opts, nil
}
