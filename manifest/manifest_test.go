package manifest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/villagehq/village/params"
)

func packArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestParseValid(t *testing.T) {
	archive := packArchive(t, map[string]string{
		"main.py": "def main(params): return 1\n",
		"village.yaml": `
name: Daily Report
id: daily_report
build_command: echo hi
image: python:3.11-slim
params:
  day:
    type: date
    description: report day
  limit:
    type: integer
    required: false
    default: "100"
`,
	})

	cfg, err := Parse(bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Equal(t, "Daily Report", cfg.Name)
	assert.Equal(t, "daily_report", cfg.ID)
	assert.Equal(t, "echo hi", cfg.BuildCommand)
	assert.Equal(t, "python:3.11-slim", cfg.Image)
	require.Len(t, cfg.Params, 2)

	// required defaults to true when omitted
	assert.True(t, cfg.Params["day"].Required)
	assert.False(t, cfg.Params["limit"].Required)
	assert.Equal(t, "100", cfg.Params["limit"].Default)
}

func TestParseDotSlashPrefix(t *testing.T) {
	// tar tooling commonly prefixes entries with ./
	archive := packArchive(t, map[string]string{
		"./village.yaml": "name: x\nid: x\n",
	})
	cfg, err := Parse(bytes.NewReader(archive))
	require.NoError(t, err)
	assert.Equal(t, "x", cfg.ID)
}

func TestParseMissingManifest(t *testing.T) {
	archive := packArchive(t, map[string]string{"main.py": "pass\n"})
	_, err := Parse(bytes.NewReader(archive))
	assert.ErrorIs(t, err, ErrManifestMissing)
}

func TestParseNotAnArchive(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("definitely not gzip")))
	assert.ErrorIs(t, err, ErrManifestInvalid)
}

func TestParseInvalidManifests(t *testing.T) {
	cases := map[string]string{
		"bad yaml":     "name: [unclosed",
		"missing name": "id: x\n",
		"missing id":   "name: x\n",
		"unknown type": "name: x\nid: x\nparams:\n  v:\n    type: decimal\n",
	}
	for label, body := range cases {
		archive := packArchive(t, map[string]string{"village.yaml": body})
		_, err := Parse(bytes.NewReader(archive))
		assert.ErrorIs(t, err, ErrManifestInvalid, label)
	}
}

func TestParseOptionForms(t *testing.T) {
	archive := packArchive(t, map[string]string{
		"village.yaml": `
name: x
id: x
params:
  mode:
    type: string
    options:
      - fast
      - label: Thorough
        value: thorough
`,
	})
	cfg, err := Parse(bytes.NewReader(archive))
	require.NoError(t, err)
	opts := cfg.Params["mode"].Options
	require.Len(t, opts, 2)
	assert.Equal(t, params.Option{Label: "fast", Value: "fast"}, opts[0])
	assert.Equal(t, params.Option{Label: "Thorough", Value: "thorough"}, opts[1])
}

func TestSpecsSortedByKey(t *testing.T) {
	cfg := &Config{
		Params: map[string]Param{
			"zeta":  {Type: params.TypeString, Required: true},
			"alpha": {Type: params.TypeInteger, Required: false, Default: "1"},
			"mid":   {Type: params.TypeBoolean, Required: true},
		},
	}
	specs := cfg.Specs()
	require.Len(t, specs, 3)
	assert.Equal(t, "alpha", specs[0].Key)
	assert.Equal(t, "mid", specs[1].Key)
	assert.Equal(t, "zeta", specs[2].Key)
	assert.Equal(t, params.TypeInteger, specs[0].Type)
	assert.False(t, specs[0].Required)
}
