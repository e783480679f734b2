// Package keys loads runtime secrets from Infisical. Secrets are
// injected as environment variables into executed containers, never into
// build contexts.
package keys

import (
	"context"
	"fmt"
	"os"

	infisical "github.com/infisical/go-sdk"
	"github.com/infisical/go-sdk/packages/models"
)

// LoadSecrets authenticates with Infisical using universal auth and
// returns the project's secrets for the configured environment.
func LoadSecrets(ctx context.Context) ([]models.Secret, error) {
	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          os.Getenv("INFISICAL_API_URL"),
		AutoTokenRefresh: true,
	})

	_, err := client.Auth().UniversalAuthLogin(os.Getenv("INFISICAL_CLIENT_ID"), os.Getenv("INFISICAL_CLIENT_SECRET"))
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with Infisical: %w", err)
	}

	secrets, err := client.Secrets().List(infisical.ListSecretsOptions{
		ProjectID:   os.Getenv("INFISICAL_PROJECT_ID"),
		Environment: os.Getenv("INFISICAL_ENV"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load secrets from Infisical: %w", err)
	}
	return secrets, nil
}
