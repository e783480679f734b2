package engine

import (
	"errors"
	"fmt"
)

// Engine identifies the language runtime a script is built and executed
// with. The set is closed: recipe generation, shim selection and the
// in-container runtime binary are all keyed off it.
type Engine string

const (
	Python Engine = "python"
	Node   Engine = "node"
)

var ErrUnsupported = errors.New("unsupported engine")

type variant struct {
	imagePattern string
	runtime      string
	shimFile     string
	// installSteps run after the package is unpacked. Python installs
	// dependencies only when a requirements.txt is present; Node always
	// runs yarn.
	installSteps []string
}

var variants = map[Engine]variant{
	Python: {
		imagePattern: "python:%s-alpine",
		runtime:      "python3",
		shimFile:     "shim.py",
		installSteps: []string{
			`RUN if test -f "./requirements.txt"; then python3 -m pip install -r requirements.txt; fi`,
		},
	},
	Node: {
		imagePattern: "node:%s-alpine",
		runtime:      "node",
		shimFile:     "shim.js",
		installSteps: []string{
			`RUN yarn install`,
		},
	},
}

// Parse validates a raw engine value from a request or a stored record.
func Parse(s string) (Engine, error) {
	e := Engine(s)
	if _, ok := variants[e]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
	return e, nil
}

func (e Engine) Valid() bool {
	_, ok := variants[e]
	return ok
}

// DefaultImage returns the base image tag used when the manifest does not
// override it.
func (e Engine) DefaultImage(version string) string {
	return fmt.Sprintf(variants[e].imagePattern, version)
}

// Runtime is the interpreter binary invoked inside the built image.
func (e Engine) Runtime() string {
	return variants[e].runtime
}

// ShimFile is the entrypoint adapter copied into every built image.
func (e Engine) ShimFile() string {
	return variants[e].shimFile
}

// InstallSteps are the Dockerfile dependency-install lines for this engine.
func (e Engine) InstallSteps() []string {
	return variants[e].installSteps
}
