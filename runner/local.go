package runner

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/infisical/go-sdk/packages/models"
)

// LocalRunner executes builds synchronously through the local Docker
// daemon: docker run --rm <image> <runtime> <shim> <json_params>.
type LocalRunner struct {
	Secrets []models.Secret
}

func NewLocalRunner(secrets []models.Secret) *LocalRunner {
	return &LocalRunner{Secrets: secrets}
}

func (l *LocalRunner) Run(ctx context.Context, image string, command []string) (string, error) {
	args := []string{"run", "--rm"}
	args = l.appendSecrets(args)
	args = append(args, image)
	args = append(args, command...)

	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("local run failed: %w: %s", err, string(out))
	}
	return string(out), nil
}

// appendSecrets injects configured secrets as container env vars.
func (l *LocalRunner) appendSecrets(args []string) []string {
	for _, secret := range l.Secrets {
		args = append(args, "-e", secret.SecretKey+"="+secret.SecretValue)
	}
	return args
}
