// Package secrets narrows the loaded secret set to the names allowed
// into executed containers.
package secrets

import (
	"log"
	"os"

	"github.com/infisical/go-sdk/packages/models"
)

// Filter keeps only the allowlisted secrets. Names missing from the
// loaded set fall back to the process environment so local setups work
// without a secret manager.
func Filter(secrets []models.Secret, allowed []string) []models.Secret {
	byKey := make(map[string]models.Secret, len(secrets))
	for _, s := range secrets {
		byKey[s.SecretKey] = s
	}

	out := make([]models.Secret, 0, len(allowed))
	for _, name := range allowed {
		if s, ok := byKey[name]; ok {
			out = append(out, s)
			continue
		}
		if value := os.Getenv(name); value != "" {
			out = append(out, models.Secret{SecretKey: name, SecretValue: value})
			continue
		}
		log.Printf("secret %s not found in manager or environment", name)
	}
	return out
}
