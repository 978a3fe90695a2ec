// Package config decodes, validates, and hot-reloads the YAML document this
// co-server runs under, translating it into the runtime types the Config
// Matcher and Server Orchestrator consume.
package config

import (
	"fmt"
	"net"

	"github.com/go-playground/validator/v10"

	"github.com/poxide/dhcp/match"
	"github.com/poxide/dhcp/poxerr"
)

// EntryDoc is match.ConfigEntry's YAML shape: snake_case keys matching this
// spec's wire vocabulary instead of match.ConfigEntry's Go field names.
type EntryDoc struct {
	BootFile       *string `json:"boot_file,omitempty"`
	BootServerIPv4 *string `json:"boot_server_ipv4,omitempty"`
}

func (e EntryDoc) toConfigEntry() match.ConfigEntry {
	return match.ConfigEntry{BootFile: e.BootFile, BootServerIPv4: e.BootServerIPv4}
}

// RuleDoc is match.MatchRule's YAML shape, using this spec's "select" key
// instead of match.MatchRule's "Selector" field name.
type RuleDoc struct {
	Name      string            `json:"name"`
	Select    map[string]string `json:"select" validate:"required,min=1"`
	MatchType string            `json:"match_type" validate:"omitempty,oneof=any all"`
	Regex     bool              `json:"regex"`
	Conf      EntryDoc          `json:"conf"`
}

// File is the top-level YAML document.
type File struct {
	Default       EntryDoc  `json:"default"`
	Ifaces        []string  `json:"ifaces" validate:"dive,hostname_rfc1123|fqdn"`
	TFTPServerDir string    `json:"tftp_server_dir"`
	MaxSessions   int       `json:"max_sessions" validate:"gte=0"`
	Match         []RuleDoc `json:"match" validate:"dive"`
}

// Overrides carries CLI-flag/environment-variable values that fill in
// whichever File fields the YAML document leaves unset.
type Overrides struct {
	BootFile       *string
	BootServerIPv4 *string
	TFTPServerDir  *string
	Ifaces         []string
	MaxSessions    *int
}

// Apply fills f's zero-valued fields from o. An explicit value in the YAML
// document always wins over a flag or environment variable: an operator
// editing the config file expects that edit to take effect.
func (o Overrides) Apply(f *File) {
	if f.Default.BootFile == nil {
		f.Default.BootFile = o.BootFile
	}
	if f.Default.BootServerIPv4 == nil {
		f.Default.BootServerIPv4 = o.BootServerIPv4
	}
	if f.TFTPServerDir == "" && o.TFTPServerDir != nil {
		f.TFTPServerDir = *o.TFTPServerDir
	}
	if len(f.Ifaces) == 0 {
		f.Ifaces = o.Ifaces
	}
	if f.MaxSessions == 0 && o.MaxSessions != nil {
		f.MaxSessions = *o.MaxSessions
	}
}

// Validate enforces this spec's two resolution-path requirements: a
// boot_file reachable from the default entry or some match rule, and either
// a tftp_server_dir or a boot_server_ipv4 to serve as the external TFTP
// source. A document failing either check must not be allowed to start the
// process.
func (f File) Validate() error {
	if err := validator.New().Struct(f); err != nil {
		return fmt.Errorf("%w: %v", poxerr.ErrConfig, err)
	}

	hasBootFile := f.Default.BootFile != nil
	hasBootServer := f.Default.BootServerIPv4 != nil
	for _, r := range f.Match {
		if r.Conf.BootFile != nil {
			hasBootFile = true
		}
		if r.Conf.BootServerIPv4 != nil {
			hasBootServer = true
		}
	}
	if !hasBootFile {
		return fmt.Errorf("%w: no boot_file resolvable from default or any match rule", poxerr.ErrConfig)
	}
	if f.TFTPServerDir == "" && !hasBootServer {
		return fmt.Errorf("%w: need tftp_server_dir or a boot_server_ipv4 somewhere in the config", poxerr.ErrConfig)
	}
	if f.Default.BootServerIPv4 != nil && net.ParseIP(*f.Default.BootServerIPv4) == nil {
		return fmt.Errorf("%w: invalid default boot_server_ipv4 %q", poxerr.ErrConfig, *f.Default.BootServerIPv4)
	}
	for _, r := range f.Match {
		if r.Conf.BootServerIPv4 == nil {
			continue
		}
		if net.ParseIP(*r.Conf.BootServerIPv4) == nil {
			return fmt.Errorf("%w: rule %q: invalid boot_server_ipv4 %q", poxerr.ErrConfig, r.Name, *r.Conf.BootServerIPv4)
		}
	}
	return nil
}

// ToMatchConfig converts a validated document into the match package's
// runtime representation.
func (f File) ToMatchConfig() match.Config {
	cfg := match.Config{Default: f.Default.toConfigEntry()}
	for _, r := range f.Match {
		cfg.Rules = append(cfg.Rules, match.MatchRule{
			Name:      r.Name,
			Selector:  match.Selector(r.Select),
			MatchType: r.MatchType,
			Regex:     r.Regex,
			Conf:      r.Conf.toConfigEntry(),
		})
	}
	return cfg
}
