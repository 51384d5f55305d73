//go:build consul

package store

import (
	"courier-pulse/pkg/consul"
)

// NewConsulStore creates a Consul-backed store (requires build tag consul).
func NewConsulStore(addr string) OrderStore {
	return consul.NewStore(addr)
}
