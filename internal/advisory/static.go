package advisory

import (
	"context"
	"fmt"
)

// Static answers from a fixed table. Used when no model provider is
// configured and in local development.
type Static struct{}

func (Static) Generate(_ context.Context, statusCode int) (string, error) {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "All systems look stable. No action needed.", nil
	case statusCode >= 300 && statusCode < 400:
		return fmt.Sprintf("Status %d: check the redirect target and update the monitored URL.", statusCode), nil
	case statusCode == 401 || statusCode == 403:
		return fmt.Sprintf("Status %d: the endpoint requires credentials; review auth settings or monitor a public health route.", statusCode), nil
	case statusCode == 404:
		return "Status 404: the path is gone; verify the deployment routes or fix the monitored URL.", nil
	case statusCode == 429:
		return "Status 429: the site is throttling requests; lower the check frequency or allow-list the monitor.", nil
	case statusCode >= 400 && statusCode < 500:
		return fmt.Sprintf("Status %d: the request is rejected; inspect recent config changes on the service.", statusCode), nil
	default:
		return fmt.Sprintf("Status %d: the service is failing; check server logs, resource usage and recent deploys.", statusCode), nil
	}
}

func (Static) Complete(_ context.Context, _ string) (string, error) {
	return FallbackGreeting, nil
}
