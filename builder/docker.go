package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
)

// DockerBackend builds images through the Docker Engine API.
type DockerBackend struct {
	cli *client.Client
}

func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerBackend{cli: cli}, nil
}

// Build tars the staged context directory, runs the daemon build and
// returns the full log stream. The stream is never truncated; a decode
// failure fails the build.
func (d *DockerBackend) Build(ctx context.Context, contextDir, tag string) ([]string, error) {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{})
	if err != nil {
		return nil, err
	}
	defer buildCtx.Close()

	resp, err := d.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var lines []string
	dec := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding build stream: %w", err)
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		if msg.Stream != "" {
			lines = append(lines, strings.TrimRight(msg.Stream, "\n"))
		}
	}
	return lines, nil
}
