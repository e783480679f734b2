package builder

import (
	"fmt"
	"strings"

	"github.com/villagehq/village/engine"
)

// Recipe synthesizes the Dockerfile for a build: base image (per-engine
// default unless the manifest overrides it), packaged archive + shim copy,
// unpack, engine-appropriate dependency install, optional custom build
// command, shim entrypoint.
func Recipe(e engine.Engine, version, buildCommand, image string) (string, error) {
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", engine.ErrUnsupported, e)
	}
	if image == "" {
		image = e.DefaultImage(version)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", image)
	b.WriteString("WORKDIR /app\n\n")
	b.WriteString("COPY package.tar.gz /app\n")
	fmt.Fprintf(&b, "COPY %s /app\n\n", e.ShimFile())
	b.WriteString("RUN tar -xzf package.tar.gz\n")
	for _, step := range e.InstallSteps() {
		b.WriteString(step + "\n")
	}
	if buildCommand != "" {
		fmt.Fprintf(&b, "RUN %s\n", buildCommand)
	}
	fmt.Fprintf(&b, "CMD [%q, %q]\n", e.Runtime(), e.ShimFile())
	return b.String(), nil
}
