package config

import "github.com/snailtrace/snail/pathmap"

// PathMap builds a pathmap.Map from the configured rules, in order.
func (c *Config) PathMap() *pathmap.Map {
	rules := make([]pathmap.Rule, 0, len(c.PathMapRules))
	for _, r := range c.PathMapRules {
		if r.Prefix != "" {
			rules = append(rules, pathmap.NewLiteralRule(r.Prefix, r.Replacement))
		} else {
			rules = append(rules, pathmap.NewRegexRule(r.Regex, r.Replacement))
		}
	}
	return pathmap.New(rules...)
}
