// Package manifest decodes the declaration file shipped inside a build
// context archive into a typed configuration.
package manifest

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/villagehq/village/params"
)

// FileName is the fixed path of the declaration file inside the archive.
const FileName = "village.yaml"

var (
	ErrManifestMissing = errors.New("village.yaml not found in build context")
	ErrManifestInvalid = errors.New("invalid village.yaml")
)

// Param is a single parameter declaration from the manifest.
type Param struct {
	Type        params.Type     `yaml:"type"`
	Default     string          `yaml:"default"`
	Description string          `yaml:"description"`
	Required    bool            `yaml:"required"`
	Options     []params.Option `yaml:"options"`
}

// Config is the parsed declaration file.
type Config struct {
	Name         string           `yaml:"name"`
	ID           string           `yaml:"id"`
	Params       map[string]Param `yaml:"params"`
	BuildCommand string           `yaml:"build_command"`
	Image        string           `yaml:"image"`
}

// rawParam mirrors Param for decoding; required defaults to true when the
// field is omitted, and options accept either plain strings or label/value
// pairs.
type rawParam struct {
	Type        string      `yaml:"type"`
	Default     string      `yaml:"default"`
	Description string      `yaml:"description"`
	Required    *bool       `yaml:"required"`
	Options     []rawOption `yaml:"options"`
}

type rawOption struct {
	Label string
	Value string
}

func (o *rawOption) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		o.Label, o.Value = s, s
		return nil
	}
	var pair struct {
		Label string `yaml:"label"`
		Value string `yaml:"value"`
	}
	if err := node.Decode(&pair); err != nil {
		return err
	}
	o.Label, o.Value = pair.Label, pair.Value
	return nil
}

func (p *Param) UnmarshalYAML(node *yaml.Node) error {
	var raw rawParam
	if err := node.Decode(&raw); err != nil {
		return err
	}
	p.Type = params.Type(raw.Type)
	p.Default = raw.Default
	p.Description = raw.Description
	p.Required = raw.Required == nil || *raw.Required
	p.Options = make([]params.Option, 0, len(raw.Options))
	for _, o := range raw.Options {
		p.Options = append(p.Options, params.Option{Label: o.Label, Value: o.Value})
	}
	return nil
}

// Parse reads a gzip-compressed tar archive and decodes the declaration
// file. It returns ErrManifestMissing when the file is absent and
// ErrManifestInvalid when the content does not satisfy the schema.
func Parse(r io.Reader) (*Config, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, ErrManifestMissing
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
		if strings.TrimPrefix(hdr.Name, "./") != FileName {
			continue
		}
		raw, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
		return decode(raw)
	}
}

func decode(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrManifestInvalid)
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrManifestInvalid)
	}
	for key, p := range cfg.Params {
		if !p.Type.Valid() {
			return nil, fmt.Errorf("%w: param %q has unknown type %q", ErrManifestInvalid, key, p.Type)
		}
	}
	return &cfg, nil
}

// Specs flattens the declared parameters into the ordered spec list frozen
// onto a build. Order is deterministic (sorted by key).
func (c *Config) Specs() []params.Spec {
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	specs := make([]params.Spec, 0, len(keys))
	for _, k := range keys {
		p := c.Params[k]
		specs = append(specs, params.Spec{
			Key:         k,
			Type:        p.Type,
			Default:     p.Default,
			Description: p.Description,
			Required:    p.Required,
			Options:     p.Options,
		})
	}
	return specs
}
