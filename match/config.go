package match

import "net"

// ConfigEntry is the set of fields a MatchRule can supply for a client.
// Fields are pointers so mergo (see matcher.go) can tell "unset" apart
// from "the zero value", the same shape the teacher's netboot config
// structs use for optional overrides.
type ConfigEntry struct {
	BootFile       *string `yaml:"bootFile,omitempty"`
	BootServerIPv4 *string `yaml:"bootServerIpv4,omitempty"`
}

// Resolved is a ConfigEntry with defaults and interface fallback already
// applied, ready to drive OFFER/ACK augmentation.
type Resolved struct {
	BootFile       string
	BootServerIPv4 net.IP
}

// Selector is a field-name -> literal-or-regex-pattern map evaluated
// against a BuildDocument output.
type Selector map[string]string

// MatchRule is one entry in the ordered rule list. MatchType controls
// whether every selector key must match (all) or just one (any); Regex
// switches the comparison from an exact string match to a regular
// expression match, with the pattern compiled by Load.
type MatchRule struct {
	Name      string      `yaml:"name"`
	Selector  Selector    `yaml:"selector"`
	MatchType string      `yaml:"matchType"` // "all" (default) or "any"
	Regex     bool        `yaml:"regex"`
	Conf      ConfigEntry `yaml:"conf"`
}

// Config is the matcher's input: an ordered rule list plus the entry used
// when no rule matches. The YAML document itself is config.File, which
// config.File.ToMatchConfig translates into a Config.
type Config struct {
	Rules   []MatchRule `yaml:"rules"`
	Default ConfigEntry `yaml:"default"`
}
