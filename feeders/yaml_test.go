package feeders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYamlFeederFeedsStruct(t *testing.T) {
	path := writeTempFile(t, "app.yaml", "host: yaml.internal\nport: 8082\ndebug: true\n")

	var cfg fileSettings
	require.NoError(t, NewYamlFeeder(path).Feed(&cfg))
	assert.Equal(t, fileSettings{Host: "yaml.internal", Port: 8082, Debug: true}, cfg)
}

func TestYamlFeederMergesIntoMap(t *testing.T) {
	base := writeTempFile(t, "app.yaml", "id: web\nweb:\n  host: a\n  port: 1\n")
	local := writeTempFile(t, "app.local.yaml", "web:\n  port: 2\n")

	bag := make(map[string]any)
	require.NoError(t, NewYamlFeeder(base).Feed(&bag))
	require.NoError(t, NewYamlFeeder(local).Feed(&bag))

	assert.Equal(t, "web", bag["id"])
	web := bag["web"].(map[string]any)
	assert.Equal(t, "a", web["host"])
	assert.Equal(t, 2, web["port"])
}

func TestYamlFeederFeedKey(t *testing.T) {
	path := writeTempFile(t, "app.yaml", "server:\n  host: yaml.internal\n  port: 8082\n")

	var cfg fileSettings
	require.NoError(t, NewYamlFeeder(path).FeedKey("server", &cfg))
	assert.Equal(t, "yaml.internal", cfg.Host)
	assert.Equal(t, 8082, cfg.Port)

	assert.ErrorIs(t, NewYamlFeeder(path).FeedKey("missing", &cfg), ErrSectionNotFound)
}
