package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/peerprobe/internal/protocol/codec"
	"github.com/danmuck/peerprobe/internal/report"
	"github.com/pelletier/go-toml/v2"
)

// ProbeFile is the on-disk schema of a peerprobe config file. Durations are
// either strings ("750ms") or integer milliseconds in the *_ms keys.
type ProbeFile struct {
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

// LoadProbeFile strictly decodes path. Unknown keys are an error so typos do not
// silently fall back to defaults.
func LoadProbeFile(path string) (ProbeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProbeFile{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var f ProbeFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return ProbeFile{}, fmt.Errorf("config parse failed (%s): %s", path, strings.TrimSpace(strict.String()))
		}
		return ProbeFile{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := ValidateProbeFile(f); err != nil {
		return ProbeFile{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return f, nil
}

func ValidateProbeFile(f ProbeFile) error {
	if _, err := codec.ParseNetwork(f.Network); err != nil {
		return err
	}
	if _, err := report.ParseFormat(f.Format); err != nil {
		return err
	}
	durations := map[string]string{
		"timeout":         f.Timeout,
		"connect_timeout": f.ConnectTimeout,
		"write_timeout":   f.WriteTimeout,
	}
	for key, raw := range durations {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if f.TimeoutMS < 0 || f.ConnectTimeoutMS < 0 {
		return fmt.Errorf("millisecond timeouts must not be negative")
	}
	if f.ReadBufferSize < 0 {
		return fmt.Errorf("read_buffer_size must not be negative")
	}
	return nil
}
