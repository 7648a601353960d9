package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "registry":
		return registryTemplate, nil
	case "server":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const registryTemplate = `[dial]
connect_timeout = "5s"
backoff_initial = "25ms"
backoff_max = "500ms"
backoff_multiplier = 2.0
backoff_jitter = true

[[channels]]
name = "echo.request"
kind = "unix"
address = "/tmp/typechan-echo-request.sock"
max_msg_size = 65536

[[channels]]
name = "echo.reply"
kind = "unix"
address = "/tmp/typechan-echo-reply.sock"
max_msg_size = 65536
`

const serverTemplate = `name = "echo"
registry = "registry.toml"
request_format = "%d"
reply_format = "%d"
metrics_addr = ":9464"
`
