package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// ServerTLSConfig builds the orders API TLS config. With clientCA set, dashboards
// must present a certificate signed by it.
func ServerTLSConfig(certFile, keyFile, clientCA string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load cert/key: %w", err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if clientCA == "" {
		return cfg, nil
	}
	caData, err := os.ReadFile(clientCA)
	if err != nil {
		return nil, fmt.Errorf("read client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("invalid client ca %s", clientCA)
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

// Serve runs srv over plain HTTP when no certificate is given, otherwise over
// TLS (mutual when clientCA is set). Half a cert/key pair is an error.
func Serve(srv *http.Server, certFile, keyFile, clientCA string) error {
	switch {
	case certFile == "" && keyFile == "":
		if clientCA != "" {
			return fmt.Errorf("client ca requires a server cert and key")
		}
		return srv.ListenAndServe()
	case certFile == "" || keyFile == "":
		return fmt.Errorf("tls cert and key must be set together")
	}
	cfg, err := ServerTLSConfig(certFile, keyFile, clientCA)
	if err != nil {
		return err
	}
	srv.TLSConfig = cfg
	return srv.ListenAndServeTLS("", "")
}
