package feeders

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverSettings struct {
	Host    string        `env:"HOST"`
	Port    int           `env:"PORT"`
	Debug   bool          `env:"DEBUG"`
	Timeout time.Duration `env:"TIMEOUT"`
	Ignored string
}

type nestedSettings struct {
	Name string `env:"NAME"`
	DB   struct {
		DSN string `env:"DB_DSN"`
	}
}

func TestEnvFeederReadsTaggedFields(t *testing.T) {
	t.Setenv("HOST", "localhost")
	t.Setenv("PORT", "8080")
	t.Setenv("DEBUG", "true")
	t.Setenv("TIMEOUT", "45s")

	var cfg serverSettings
	cfg.Ignored = "untouched"
	require.NoError(t, NewEnvFeeder().Feed(&cfg))

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, "untouched", cfg.Ignored)
}

func TestEnvFeederLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := serverSettings{Host: "fallback"}
	require.NoError(t, NewEnvFeeder().Feed(&cfg))
	assert.Equal(t, "fallback", cfg.Host)
	assert.Zero(t, cfg.Port)
}

func TestEnvFeederAffixedNames(t *testing.T) {
	t.Setenv("APP_HOST_DEV", "dev.internal")

	var cfg serverSettings
	require.NoError(t, NewAffixedEnvFeeder("app", "dev").Feed(&cfg))
	assert.Equal(t, "dev.internal", cfg.Host)
}

func TestEnvFeederWalksNestedStructs(t *testing.T) {
	t.Setenv("NAME", "arbor")
	t.Setenv("DB_DSN", "postgres://localhost/arbor")

	var cfg nestedSettings
	require.NoError(t, NewEnvFeeder().Feed(&cfg))
	assert.Equal(t, "arbor", cfg.Name)
	assert.Equal(t, "postgres://localhost/arbor", cfg.DB.DSN)
}

func TestEnvFeederRejectsBadTargets(t *testing.T) {
	f := NewEnvFeeder()

	assert.ErrorIs(t, f.Feed(nil), ErrInvalidTarget)
	assert.ErrorIs(t, f.Feed(serverSettings{}), ErrInvalidTarget)

	n := 3
	assert.ErrorIs(t, f.Feed(&n), ErrInvalidStructureType)
}

func TestEnvFeederReportsConversionErrors(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	var cfg serverSettings
	assert.ErrorIs(t, NewEnvFeeder().Feed(&cfg), ErrCannotConvert)
}
