// Package config loads dashboard settings from defaults, an optional YAML
// file, a .env file and the process environment, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"courier-pulse/pkg/perf"
)

// Dashboard holds everything cmd/dashboard needs to run.
type Dashboard struct {
	BaseURL         string          `yaml:"base_url"`
	Token           string          `yaml:"token"`
	PollInterval    time.Duration   `yaml:"poll_interval"`
	JournalPath     string          `yaml:"journal_path"`
	JournalRetain   time.Duration   `yaml:"journal_retain"`
	ListenAddr      string          `yaml:"listen_addr"`
	MetricsInterval time.Duration   `yaml:"metrics_interval"`
	FrameRate       int             `yaml:"frame_rate"`
	TLS             TLSConfig       `yaml:"tls"`
	Thresholds      perf.Thresholds `yaml:"thresholds"`
}

// TLSConfig configures the client side of the connection to the orders API.
type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	Insecure bool   `yaml:"insecure"`
}

// Defaults returns the stock dashboard settings.
func Defaults() Dashboard {
	return Dashboard{
		BaseURL:         "http://127.0.0.1:8080",
		PollInterval:    5 * time.Second,
		JournalPath:     "./data/poll-journal.db",
		JournalRetain:   24 * time.Hour,
		ListenAddr:      ":8090",
		MetricsInterval: 10 * time.Second,
		FrameRate:       60,
		Thresholds:      perf.DefaultThresholds(),
	}
}

// Load applies the YAML file at path (skipped when path is empty), then
// .env, then environment variables on top of Defaults.
func Load(path string) (Dashboard, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return cfg, fmt.Errorf("load .env: %w", err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Dashboard) applyEnv(getenv func(string) string) error {
	if v := getenv("ORDERS_API_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("AUTH_TOKEN"); v != "" {
		c.Token = v
	}
	if v := getenv("JOURNAL_PATH"); v != "" {
		c.JournalPath = v
	}
	if v := getenv("DASHBOARD_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := getenv("CA_FILE"); v != "" {
		c.TLS.CAFile = v
	}
	for key, dst := range map[string]*time.Duration{
		"POLL_INTERVAL":    &c.PollInterval,
		"METRICS_INTERVAL": &c.MetricsInterval,
		"JOURNAL_RETAIN":   &c.JournalRetain,
	} {
		v := getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}
	if v := getenv("FRAME_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FRAME_RATE: %w", err)
		}
		c.FrameRate = n
	}
	return nil
}

// Validate rejects settings the dashboard cannot run with.
func (c Dashboard) Validate() error {
	var problems []string
	if strings.TrimSpace(c.BaseURL) == "" {
		problems = append(problems, "base_url is required")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "poll_interval must be positive")
	}
	if c.MetricsInterval <= 0 {
		problems = append(problems, "metrics_interval must be positive")
	}
	if c.FrameRate <= 0 {
		problems = append(problems, "frame_rate must be positive")
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		problems = append(problems, "tls cert_file and key_file must be set together")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
