// Package builder turns an uploaded build-context archive into a built,
// versioned container image and drives the Build state machine.
package builder

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/villagehq/village/manifest"
	"github.com/villagehq/village/store"
)

//go:embed shim/shim.py shim/shim.js
var shims embed.FS

// ErrBuildFailed wraps build-backend errors surfaced to the caller.
var ErrBuildFailed = errors.New("build failed")

// Backend is the container build capability: build the staged context
// directory into an image tagged tag and return the captured log lines.
type Backend interface {
	Build(ctx context.Context, contextDir, tag string) ([]string, error)
}

const DefaultTimeout = 10 * time.Minute

type Builder struct {
	Store   *store.Store
	Backend Backend
	// Timeout bounds a single backend build call. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

func New(st *store.Store, backend Backend, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Builder{Store: st, Backend: backend, Timeout: timeout}
}

// Build parses the manifest out of the archive, creates the build record
// in `building`, stages the context and drives the backend. The record
// always reaches a terminal state: any exit path that has not written
// `success` writes `failure`, including panics.
func (b *Builder) Build(ctx context.Context, script *store.Script, archive []byte) (*store.Build, error) {
	cfg, err := manifest.Parse(bytes.NewReader(archive))
	if err != nil {
		// input error: no record is created for an unparseable context
		return nil, err
	}

	recipe, err := Recipe(script.Engine, script.EngineVersion, cfg.BuildCommand, cfg.Image)
	if err != nil {
		return nil, err
	}

	build := &store.Build{
		ScriptID:     script.ID,
		Status:       store.BuildBuilding,
		BuildCommand: cfg.BuildCommand,
		Params:       cfg.Specs(),
	}
	if err := b.Store.CreateBuild(ctx, build); err != nil {
		return nil, err
	}

	// scoped cleanup: whatever happens below, the record leaves
	// `building`. The request context may already be dead here, so the
	// terminal write uses its own context.
	terminal := false
	defer func() {
		if terminal {
			return
		}
		if err := b.Store.FinishBuild(context.Background(), build.ID, store.BuildFailure, build.Output); err != nil {
			log.Printf("builder: failed to fail dangling build %s: %v", build.ID, err)
		}
	}()

	dir, err := b.stageContext(script, archive, recipe)
	if err != nil {
		terminal = true
		b.fail(build)
		return build, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	defer os.RemoveAll(dir)

	buildCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()

	logLines, err := b.Backend.Build(buildCtx, dir, build.ID)
	if err != nil {
		terminal = true
		b.fail(build)
		return build, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}

	output, err := json.Marshal(logLines)
	if err != nil {
		terminal = true
		b.fail(build)
		return build, fmt.Errorf("%w: log capture: %v", ErrBuildFailed, err)
	}

	if err := b.Store.SetBuildImage(ctx, build.ID, build.ID); err != nil {
		terminal = true
		b.fail(build)
		return build, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	if err := b.Store.FinishBuild(ctx, build.ID, store.BuildSuccess, string(output)); err != nil {
		terminal = true
		b.fail(build)
		return build, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	terminal = true

	return b.Store.GetBuild(ctx, build.ID)
}

func (b *Builder) fail(build *store.Build) {
	// the request context may already be cancelled (client gone); the
	// terminal write must land regardless
	if err := b.Store.FinishBuild(context.Background(), build.ID, store.BuildFailure, build.Output); err != nil {
		log.Printf("builder: failed to mark build %s failed: %v", build.ID, err)
	}
	build.Status = store.BuildFailure
}

// stageContext lays out the build context handed to the backend: the
// packaged archive, the synthesized Dockerfile and the per-engine shim.
func (b *Builder) stageContext(script *store.Script, archive []byte, recipe string) (string, error) {
	dir, err := os.MkdirTemp("", "village-build-*")
	if err != nil {
		return "", err
	}
	cleanup := func(e error) (string, error) {
		os.RemoveAll(dir)
		return "", e
	}

	if err := os.WriteFile(filepath.Join(dir, "package.tar.gz"), archive, 0o644); err != nil {
		return cleanup(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(recipe), 0o644); err != nil {
		return cleanup(err)
	}
	shim, err := shims.ReadFile("shim/" + script.Engine.ShimFile())
	if err != nil {
		return cleanup(err)
	}
	if err := os.WriteFile(filepath.Join(dir, script.Engine.ShimFile()), shim, 0o644); err != nil {
		return cleanup(err)
	}
	return dir, nil
}
