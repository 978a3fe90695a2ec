package match

import (
	"fmt"
	"regexp"

	"github.com/imdario/mergo"
	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/poxide/dhcp/poxerr"
)

// compiledRule is a MatchRule with its selector values pre-parsed so
// matching never fails at request time; a rule whose Regex flag is set
// and whose pattern cannot compile is rejected at Load, not at Match.
type compiledRule struct {
	name      string
	matchType string
	conf      ConfigEntry
	fields    map[string]*regexp.Regexp // regex selectors; nil map for a literal rule
	literals  map[string]string         // literal selectors; empty for a regex rule
}

// Matcher evaluates an ordered rule list against request documents. It is
// immutable once built; Load produces a new Matcher so callers (the config
// hot-reload path) can swap it in atomically.
type Matcher struct {
	rules   []compiledRule
	def     ConfigEntry
}

// Load compiles cfg into a Matcher. Invalid regex patterns surface here as
// ConfigError, matching this spec's requirement that bad configuration
// never reaches match time.
func Load(cfg Config) (*Matcher, error) {
	m := &Matcher{def: cfg.Default}
	for _, rule := range cfg.Rules {
		cr := compiledRule{
			name:      rule.Name,
			matchType: rule.MatchType,
			conf:      rule.Conf,
			literals:  map[string]string{},
		}
		if cr.matchType == "" {
			cr.matchType = "all"
		}
		if rule.Regex {
			cr.fields = map[string]*regexp.Regexp{}
			for field, pattern := range rule.Selector {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return nil, fmt.Errorf("%w: rule %q field %q: %v", poxerr.ErrConfig, rule.Name, field, err)
				}
				cr.fields[field] = re
			}
		} else {
			for field, literal := range rule.Selector {
				cr.literals[field] = literal
			}
		}
		m.rules = append(m.rules, cr)
	}
	return m, nil
}

// Match evaluates pkt's document against the rule list in declaration
// order and returns the first matching rule's entry merged over the
// default entry. If no rule matches, the default entry alone is returned
// unless it is entirely empty, in which case Match reports ErrMatchMiss.
func Match(m *Matcher, pkt *dhcpv4.DHCPv4) (*ConfigEntry, error) {
	doc := BuildDocument(pkt)
	for _, rule := range m.rules {
		if rule.evaluate(doc) {
			entry := rule.conf
			if err := mergo.Merge(&entry, m.def); err != nil {
				return nil, fmt.Errorf("%w: merging rule %q: %v", poxerr.ErrConfig, rule.name, err)
			}
			return &entry, nil
		}
	}
	if m.def.BootFile == nil && m.def.BootServerIPv4 == nil {
		return nil, poxerr.ErrMatchMiss
	}
	def := m.def
	return &def, nil
}

func (r compiledRule) evaluate(doc map[string]any) bool {
	total := len(r.literals) + len(r.fields)
	if total == 0 {
		return false
	}
	matched := 0
	for field, want := range r.literals {
		if got, ok := resolve(doc, field); ok && got == want {
			matched++
		}
	}
	for field, re := range r.fields {
		if got, ok := resolve(doc, field); ok && re.MatchString(got) {
			matched++
		}
	}
	if r.matchType == "any" {
		return matched > 0
	}
	return matched == total
}
