package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/peerprobe/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "peerprobe.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "peerprobe.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	f, err := LoadProbeFile(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if f.Address != "127.0.0.1:8333" || f.ConnectTimeoutMS != 1000 || f.Format != "text" {
		t.Fatalf("unexpected template values: %+v", f)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite existing config")
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("overwrite template: %v", err)
	}
}

func TestLoadProbeFileRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)
	path := writeFile(t, "address = \"127.0.0.1:8333\"\ntimout = \"1s\"\n")
	_, err := LoadProbeFile(path)
	if err == nil || !strings.Contains(err.Error(), "timout") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadProbeFileValidates(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"network":  "network = \"moonnet\"\n",
		"format":   "format = \"yaml\"\n",
		"duration": "timeout = \"soon\"\n",
		"negative": "timeout_ms = -5\n",
		"buffer":   "read_buffer_size = -1\n",
	}
	for name, body := range cases {
		if _, err := LoadProbeFile(writeFile(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadProbeFileMissing(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadProbeFile(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
