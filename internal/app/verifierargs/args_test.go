package verifierargs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor(t *testing.T) {
	data, err := JSON()
	require.NoError(t, err)

	var d Descriptor
	require.NoError(t, json.Unmarshal([]byte(data), &d))

	options := map[string]Option{}
	for _, o := range d.Options {
		options[o.Long] = o
	}
	flags := map[string]Option{}
	for _, f := range d.Flags {
		flags[f.Long] = f
	}

	assert.Equal(t, Option{
		Long:           "scheme",
		Help:           "Provider URI scheme (defaults to http)",
		PossibleValues: []string{"http", "https"},
		DefaultValue:   "http",
	}, options["scheme"])
	assert.Equal(t, Option{
		Long:     "file",
		Short:    "f",
		Help:     "Pact file to verify (can be repeated)",
		Multiple: true,
	}, options["file"])
	assert.Equal(t, "PACT_BROKER_USERNAME", options["user"].Env)

	assert.Contains(t, flags, "disable-ssl-verification")
	assert.NotContains(t, options, "disable-ssl-verification")
	assert.Equal(t, "PACT_PROVIDER_NO_STATE", flags["filter-no-state"].Env)
	assert.Equal(t, "loglevel", d.Options[0].Long)
}

func TestFlagSetParses(t *testing.T) {
	fs := FlagSet()
	require.NoError(t, fs.Parse([]string{"-f", "a.json", "--file", "b.json", "--scheme", "https", "--publish"}))

	files, err := fs.GetStringArray("file")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json", "b.json"}, files)
	publish, err := fs.GetBool("publish")
	require.NoError(t, err)
	assert.True(t, publish)
}
