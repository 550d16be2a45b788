package config

import (
	"fmt"
	"os"
)

func Template() string {
	return probeTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(probeTemplate), 0o600)
}

const probeTemplate = `address = "127.0.0.1:8333"
user_agent = "/peerprobe:0.1.0/"
network = "mainnet"
timeout = "1s"
connect_timeout_ms = 1000
write_timeout = "1s"
read_buffer_size = 1024
format = "text"
metrics_file = ""
`
