package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stephnangue/warrant/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warrant.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeTestConfig(t, `
log_level  = "debug"
log_format = "json"
log_file   = "/var/log/warrant/warrant.log"

authority {
  grant_ttl_seconds         = 120
  liveness_interval_seconds = 5
  admin_identities          = ["uid:0", "gid:27"]
}

audit "file" "main" {
  path             = "/var/log/warrant/audit.log"
  rotate_megabytes = 50
  compress         = true
}

action "org.example.mount" {
  message   = "Authentication is required to mount the device"
  icon_name = "drive-removable-media"

  localized_messages = {
    de = "Anmeldung erforderlich"
  }

  implicit_active   = "auth_self_keep"
  implicit_inactive = "auth_admin"
  implicit_any      = "no"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	require.NotNil(t, cfg.Authority)
	assert.Equal(t, 120, cfg.Authority.GrantTTLSeconds)
	assert.Equal(t, 5, cfg.Authority.LivenessIntervalSeconds)

	admins, err := cfg.ParsedAdminIdentities()
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, core.UserIdentity(0), admins[0])
	assert.Equal(t, core.GroupIdentity(27), admins[1])

	require.Len(t, cfg.Audits, 1)
	assert.Equal(t, "file", cfg.Audits[0].Type)
	assert.Equal(t, "main", cfg.Audits[0].Name)
	options := cfg.Audits[0].Options()
	assert.Equal(t, "/var/log/warrant/audit.log", options["path"])
	assert.Equal(t, 50, options["rotate_megabytes"])
	assert.Equal(t, true, options["compress"])

	require.Len(t, cfg.Actions, 1)
	block := cfg.Actions[0]
	assert.Equal(t, "org.example.mount", block.ID)
	assert.Equal(t, "Anmeldung erforderlich", block.LocalizedMessages["de"])

	active, inactive, implicitAny, err := block.ImplicitLevels()
	require.NoError(t, err)
	assert.Equal(t, core.AuthenticationRequiredRetained, active)
	assert.Equal(t, core.AdministratorAuthenticationRequired, inactive)
	assert.Equal(t, core.NotAuthorized, implicitAny)
}

func TestLoadConfig_Minimal(t *testing.T) {
	path := writeTestConfig(t, `log_level = "info"`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Nil(t, cfg.Authority)
	assert.Empty(t, cfg.Audits)

	admins, err := cfg.ParsedAdminIdentities()
	require.NoError(t, err)
	assert.Nil(t, admins)
}

func TestLoadConfig_BadAdminIdentity(t *testing.T) {
	path := writeTestConfig(t, `
authority {
  admin_identities = ["wheel"]
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = cfg.ParsedAdminIdentities()
	require.Error(t, err)
}

func TestActionBlock_BadImplicitLevel(t *testing.T) {
	block := ActionBlock{ID: "org.example.x", ImplicitActive: "sometimes"}
	_, _, _, err := block.ImplicitLevels()
	require.Error(t, err)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.hcl"))
	require.Error(t, err)
}
