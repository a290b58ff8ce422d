package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/stephnangue/warrant/core"
)

// Config is the configuration for the warrant server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Authority *AuthorityBlock `hcl:"authority,block"`
	Audits    []AuditBlock    `hcl:"audit,block"`
	Actions   []ActionBlock   `hcl:"action,block"`
}

// AuthorityBlock tunes the decision engine and the temporary authorization
// store.
type AuthorityBlock struct {
	GrantTTLSeconds         int `hcl:"grant_ttl_seconds,optional"`
	LivenessIntervalSeconds int `hcl:"liveness_interval_seconds,optional"`

	// AdminIdentities lists who counts as an administrator for auth_admin
	// challenges, e.g. ["uid:0", "gid:27"]. Defaults to uid 0.
	AdminIdentities []string `hcl:"admin_identities,optional"`
}

// AuditBlock declares one audit device.
type AuditBlock struct {
	Type string `hcl:"type,label"` // "file"
	Name string `hcl:"name,label"`

	Path            string `hcl:"path,optional"`
	RotateMegabytes int    `hcl:"rotate_megabytes,optional"`
	MaxBackups      int    `hcl:"max_backups,optional"`
	MaxAgeDays      int    `hcl:"max_age_days,optional"`
	Compress        bool   `hcl:"compress,optional"`
	Prefix          string `hcl:"prefix,optional"`
}

// Options returns the device configuration as an option map
func (a *AuditBlock) Options() map[string]any {
	options := make(map[string]any)
	if a.Path != "" {
		options["path"] = a.Path
	}
	if a.RotateMegabytes != 0 {
		options["rotate_megabytes"] = a.RotateMegabytes
	}
	if a.MaxBackups != 0 {
		options["max_backups"] = a.MaxBackups
	}
	if a.MaxAgeDays != 0 {
		options["max_age_days"] = a.MaxAgeDays
	}
	if a.Compress {
		options["compress"] = a.Compress
	}
	if a.Prefix != "" {
		options["prefix"] = a.Prefix
	}
	return options
}

// ActionBlock declares one action in the pool.
type ActionBlock struct {
	ID string `hcl:"id,label"`

	Message  string `hcl:"message"`
	IconName string `hcl:"icon_name,optional"`

	LocalizedMessages map[string]string `hcl:"localized_messages,optional"`

	ImplicitActive   string `hcl:"implicit_active,optional"`
	ImplicitInactive string `hcl:"implicit_inactive,optional"`
	ImplicitAny      string `hcl:"implicit_any,optional"`
}

// LoadConfig parses an HCL config file
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// ParsedAdminIdentities resolves the authority block's admin identity
// strings. An absent block or empty list yields nil, letting the authority
// apply its default.
func (c *Config) ParsedAdminIdentities() ([]core.Identity, error) {
	if c.Authority == nil || len(c.Authority.AdminIdentities) == 0 {
		return nil, nil
	}

	out := make([]core.Identity, 0, len(c.Authority.AdminIdentities))
	for _, raw := range c.Authority.AdminIdentities {
		identity, err := core.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid admin identity: %w", err)
		}
		out = append(out, identity)
	}
	return out, nil
}

// ImplicitLevels parses the three implicit-authorization fields. Empty
// fields default to not_authorized.
func (a *ActionBlock) ImplicitLevels() (active, inactive, any core.ImplicitAuthorization, err error) {
	parse := func(raw string) (core.ImplicitAuthorization, error) {
		if raw == "" {
			return core.NotAuthorized, nil
		}
		level, ok := core.ParseImplicitAuthorization(raw)
		if !ok {
			return 0, fmt.Errorf("unknown implicit authorization %q", raw)
		}
		return level, nil
	}

	if active, err = parse(a.ImplicitActive); err != nil {
		return 0, 0, 0, fmt.Errorf("action %q: %w", a.ID, err)
	}
	if inactive, err = parse(a.ImplicitInactive); err != nil {
		return 0, 0, 0, fmt.Errorf("action %q: %w", a.ID, err)
	}
	if any, err = parse(a.ImplicitAny); err != nil {
		return 0, 0, 0, fmt.Errorf("action %q: %w", a.ID, err)
	}
	return active, inactive, any, nil
}
