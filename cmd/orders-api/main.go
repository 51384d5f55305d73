package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"courier-pulse/pkg/api"
	"courier-pulse/pkg/db"
	"courier-pulse/pkg/store"
	"courier-pulse/pkg/version"
)

func main() {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	addr := flag.String("addr", ":8080", "listen address")
	token := flag.String("token", os.Getenv("AUTH_TOKEN"), "static auth token (optional, env AUTH_TOKEN)")
	storeType := flag.String("store", "memory", "store backend: memory|consul (requires build tag consul)")
	consulAddr := flag.String("consul-addr", "127.0.0.1:8500", "consul address (when store=consul)")
	environment := flag.String("env", env, "environment name reported by /api/health (env APP_ENV)")
	tlsCert := flag.String("tls-cert", "", "TLS cert path (enables HTTPS if set with --tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS key path (enables HTTPS if set with --tls-cert)")
	clientCA := flag.String("client-ca", "", "require and verify client certs using this CA (optional)")
	flag.Parse()

	var orderStore store.OrderStore
	switch *storeType {
	case "consul":
		orderStore = store.NewConsulStore(*consulAddr)
	case "memory":
		orderStore = store.NewMemoryStore()
	default:
		log.Fatalf("unsupported store type: %s", *storeType)
	}

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, orderStore, *token, *environment)

	if db.Enabled() {
		gdb, err := db.Init()
		if err != nil {
			log.Fatalf("mysql init failed: %v", err)
		}
		(&api.AuthHandler{DB: gdb}).RegisterRoutes(mux)
		log.Printf("account routes enabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if w, ok := orderStore.(interface {
		StartWatch(context.Context, func())
	}); ok && *storeType == "consul" {
		w.StartWatch(ctx, func() {
			log.Printf("consul watch: orders changed")
		})
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("orders api version=%s env=%s store=%s listening on %s", version.Build, *environment, *storeType, *addr)
	err := api.Serve(srv, *tlsCert, *tlsKey, *clientCA)
	if err != nil {
		log.Fatalf("server error: %v", err)
	}
}
