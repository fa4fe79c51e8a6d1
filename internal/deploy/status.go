// Package deploy defines the deployment status contract reported to the UI.
package deploy

import "context"

// DeploymentUpdate is the status of one deployed resource.
type DeploymentUpdate struct {
	ResourceID string `json:"resource_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// StatusProvider reports the current deployment status.
type StatusProvider interface {
	Status(ctx context.Context) ([]DeploymentUpdate, error)
}

// StubProvider reports no deployments. It stands in until a real
// integration exists.
type StubProvider struct{}

// Status returns an empty, non-nil list.
func (StubProvider) Status(ctx context.Context) ([]DeploymentUpdate, error) {
	return []DeploymentUpdate{}, nil
}
