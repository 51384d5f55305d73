package model

// HealthStatus is served by /api/health for deployment validation.
type HealthStatus struct {
	Status      string            `json:"status"` // healthy/degraded
	Environment string            `json:"environment"`
	Version     string            `json:"version,omitempty"`
	Checks      map[string]string `json:"checks"`
}
