package extract

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// RuleDefinition is one named field with an ordered list of patterns.
// The first pattern that matches wins.
type RuleDefinition struct {
	Name      string           `json:"name"`
	Category  string           `json:"category"`
	Regexps   []*regexp.Regexp `json:"-"`
	RegexStrs []string         `json:"regexps"`
}

type Rules struct {
	defs   []RuleDefinition
	byName map[string]int
}

//go:embed rules.json
var defaultRules []byte

// LoadRules reads rule definitions from path, or the built-in set when path is empty.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return ParseRules(strings.NewReader(string(defaultRules)))
	}

	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer jsonFile.Close()

	return ParseRules(jsonFile)
}

func ParseRules(r io.Reader) (*Rules, error) {
	var defs []RuleDefinition
	if err := json.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("decoding rule definitions: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("rule definitions file does not contain any rules")
	}

	defs, err := compileRegexStrings(defs)
	if err != nil {
		return nil, err
	}

	rules := &Rules{defs: defs, byName: make(map[string]int, len(defs))}
	for i, d := range defs {
		if _, dup := rules.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate rule %q", d.Name)
		}
		rules.byName[d.Name] = i
	}
	return rules, nil
}

func compileRegexStrings(defs []RuleDefinition) ([]RuleDefinition, error) {
	for i := range defs {
		compiled := make([]*regexp.Regexp, 0, len(defs[i].RegexStrs))
		for _, pattern := range defs[i].RegexStrs {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %q: %w", defs[i].Name, err)
			}
			compiled = append(compiled, re)
		}
		defs[i].Regexps = compiled
	}
	return defs, nil
}

func (r *Rules) patterns(name string) []*regexp.Regexp {
	i, ok := r.byName[name]
	if !ok {
		return nil
	}
	return r.defs[i].Regexps
}

// First returns the first capture group of the first matching pattern,
// or the whole match when the pattern has no group.
func (r *Rules) First(name, text string) (string, bool) {
	m := r.Submatch(name, text)
	if m == nil {
		return "", false
	}
	if len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	return strings.TrimSpace(m[0]), true
}

// Submatch returns the submatches of the first matching pattern.
func (r *Rules) Submatch(name, text string) []string {
	for _, re := range r.patterns(name) {
		if m := re.FindStringSubmatch(text); m != nil {
			return m
		}
	}
	return nil
}

func (r *Rules) Match(name, text string) bool {
	for _, re := range r.patterns(name) {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Index returns the byte offset of the first match of any pattern, or -1.
func (r *Rules) Index(name, text string) int {
	best := -1
	for _, re := range r.patterns(name) {
		if loc := re.FindStringIndex(text); loc != nil && (best == -1 || loc[0] < best) {
			best = loc[0]
		}
	}
	return best
}
