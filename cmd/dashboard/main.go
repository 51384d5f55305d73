package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"courier-pulse/pkg/config"
	"courier-pulse/pkg/dashboard"
	"courier-pulse/pkg/journal"
	"courier-pulse/pkg/version"
)

func main() {
	configPath := flag.String("config", os.Getenv("DASHBOARD_CONFIG"), "YAML config file (env DASHBOARD_CONFIG)")
	showVersion := flag.Bool("v", false, "print version and exit")
	baseURL := flag.String("api", "", "orders API base URL (overrides config)")
	token := flag.String("token", "", "bearer token for the orders API (overrides config)")
	interval := flag.Duration("interval", 0, "poll interval (overrides config)")
	addr := flag.String("addr", "", "diagnostics listen address (overrides config)")
	journalPath := flag.String("journal", "", "poll journal path; \"off\" disables it")
	insecure := flag.Bool("insecure", false, "skip TLS verify for the orders API (not recommended)")
	flag.Parse()

	if *showVersion {
		log.Printf("dashboard version=%s", version.Build)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *token != "" {
		cfg.Token = *token
	}
	if *interval > 0 {
		cfg.PollInterval = *interval
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}
	if *journalPath != "" {
		cfg.JournalPath = *journalPath
	}
	if *insecure {
		cfg.TLS.Insecure = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	client, err := buildHTTPClient(cfg.TLS)
	if err != nil {
		log.Fatalf("http client build failed: %v", err)
	}

	var j *journal.Journal
	if cfg.JournalPath != "" && cfg.JournalPath != "off" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			log.Fatalf("journal: %v", err)
		}
		defer j.Close()
		if fi, err := os.Stat(filepath.Clean(cfg.JournalPath)); err == nil {
			log.Printf("journal opened path=%s size=%s", cfg.JournalPath, humanize.Bytes(uint64(fi.Size())))
		}
	}

	svc, err := dashboard.New(cfg, client, j)
	if err != nil {
		log.Fatalf("dashboard: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("dashboard listening on %s api=%s interval=%s", cfg.ListenAddr, cfg.BaseURL, cfg.PollInterval)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server error: %v", err)
			stop()
		}
	}()

	if err := svc.Run(ctx); err != nil {
		log.Printf("dashboard run: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}

func buildHTTPClient(c config.TLSConfig) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: c.Insecure} //nolint:gosec
	if c.CAFile != "" {
		caCertPool := x509.NewCertPool()
		caData, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		caCertPool.AppendCertsFromPEM(caData)
		tlsConfig.RootCAs = caCertPool
	}
	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
		},
	}, nil
}
