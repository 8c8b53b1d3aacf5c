package temporalx

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	AutoRegisterNamespace bool
	DialTimeout           time.Duration
	DialMaxWait           time.Duration
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

func (c Config) mTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func LoadConfig() Config {
	return Config{
		Address:   strings.TrimSpace(os.Getenv("TEMPORAL_ADDRESS")),
		Namespace: stringsOr(os.Getenv("TEMPORAL_NAMESPACE"), "content"),
		TaskQueue: stringsOr(os.Getenv("TEMPORAL_TASK_QUEUE"), "content-generation"),

		ClientCertPath: strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CERT_PATH")),
		ClientKeyPath:  strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_KEY_PATH")),
		ClientCAPath:   strings.TrimSpace(os.Getenv("TEMPORAL_CLIENT_CA_PATH")),

		AutoRegisterNamespace: envTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false),
		DialTimeout:           durationSecondsFromEnv("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5),
		DialMaxWait:           durationSecondsFromEnv("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60),
	}
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}
