package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestReadAppliesDefaults(t *testing.T) {
	p := writeConfig(t, `
jwt:
  secret: s3cret
db:
  driver: postgres
  dsn: postgres://localhost/review
`)
	c, err := Read(p)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", c.JWT.Secret)
	assert.Equal(t, 24*time.Hour, c.JWT.TTL())
	assert.Equal(t, "postgres", c.DB.Driver)
	assert.Equal(t, 20, c.Auth.CodeLength)
	assert.Equal(t, "me", c.Auth.ReservedUsername)
	assert.Equal(t, "log", c.Mail.Driver)
	assert.Equal(t, "admin@admin.org", c.Mail.From)
	assert.Equal(t, 8080, c.App.HTTP.Port)
	assert.Equal(t, 10*time.Second, c.Limits.RequestTimeout)
}

func TestReadEnvOverride(t *testing.T) {
	t.Setenv("APP_MAIL_DRIVER", "smtp")
	p := writeConfig(t, "jwt:\n  secret: s\n")

	c, err := Read(p)
	require.NoError(t, err)
	assert.Equal(t, "smtp", c.Mail.Driver)
}

func TestReadRequiresSecret(t *testing.T) {
	p := writeConfig(t, "app:\n  name: x\n")
	_, err := Read(p)
	assert.Error(t, err)
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
