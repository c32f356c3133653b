// Package policy loads and compiles the access policy document consumed
// by the policy engine (C10), per spec.md §4.10. The core never reads
// YAML or walks a directory itself; this adapter owns both.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/pqsecure/mesh/internal/core/domain"
	meshErrors "github.com/pqsecure/mesh/internal/core/errors"
	"github.com/pqsecure/mesh/internal/core/ports"
)

// documentRule is the raw, uncompiled shape of one rules[] entry.
type documentRule struct {
	SpiffeID string `yaml:"spiffe_id"`
	Protocol string `yaml:"protocol"`
	Method   string `yaml:"method"`
	Allow    bool   `yaml:"allow"`
}

// document is the raw, uncompiled shape of a policy YAML file.
type document struct {
	DefaultAction bool           `yaml:"default_action"`
	Rules         []documentRule `yaml:"rules"`
}

// FileSource implements ports.PolicySource against a single YAML file.
type FileSource struct {
	path string
}

// NewFileSource returns a FileSource that compiles the document at path
// on every call to Load.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

var _ ports.PolicySource = (*FileSource)(nil)

// Load reads, parses, and compiles the configured policy file. A regex
// compilation failure or malformed YAML is a hard load error.
func (s *FileSource) Load() (*domain.CompiledPolicy, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, meshErrors.NewConfigError(fmt.Sprintf("read policy file %q", s.path), err)
	}
	return compile(data, s.path)
}

// LoadPolicyDir loads every "<tenant>.yaml" file in dir independently,
// per spec.md §6's optional directory form, returning a map keyed by the
// tenant name (the file's base name without extension). One tenant's
// load failure does not affect another's.
func LoadPolicyDir(dir string) (map[string]*domain.CompiledPolicy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, meshErrors.NewConfigError(fmt.Sprintf("read policy directory %q", dir), err)
	}

	policies := make(map[string]*domain.CompiledPolicy, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		tenant := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, meshErrors.NewConfigError(fmt.Sprintf("read tenant policy %q", path), err)
		}
		compiled, err := compile(data, path)
		if err != nil {
			return nil, err
		}
		policies[tenant] = compiled
	}
	return policies, nil
}

func isYAMLFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// compile parses a policy document and compiles every rule's matchers in
// order, per spec.md §4.10: "*" and absent both compile to Any, a
// "regex:<pattern>" prefix compiles to Regex, and anything else compiles
// to Exact.
func compile(data []byte, source string) (*domain.CompiledPolicy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, meshErrors.NewConfigError(fmt.Sprintf("parse policy document %q", source), err)
	}

	rules := make([]domain.CompiledRule, 0, len(doc.Rules))
	for i, raw := range doc.Rules {
		spiffeMatch, err := compileMatcher(raw.SpiffeID)
		if err != nil {
			return nil, meshErrors.NewConfigError(fmt.Sprintf("%s: rule %d: spiffe_id", source, i), err)
		}
		protocolMatch, err := compileMatcher(strings.ToLower(raw.Protocol))
		if err != nil {
			return nil, meshErrors.NewConfigError(fmt.Sprintf("%s: rule %d: protocol", source, i), err)
		}
		methodMatch, err := compileMatcher(raw.Method)
		if err != nil {
			return nil, meshErrors.NewConfigError(fmt.Sprintf("%s: rule %d: method", source, i), err)
		}
		rules = append(rules, domain.CompiledRule{
			SpiffeID: spiffeMatch,
			Protocol: protocolMatch,
			Method:   methodMatch,
			Allow:    raw.Allow,
		})
	}

	return domain.NewCompiledPolicy(doc.DefaultAction, rules), nil
}

// compileMatcher interprets one matcher field: empty or "*" is Any, a
// "regex:" prefix compiles the remainder as a regular expression,
// anything else is an exact match.
func compileMatcher(field string) (domain.MatchRule, error) {
	switch {
	case field == "" || field == "*":
		return domain.AnyMatch(), nil
	case strings.HasPrefix(field, "regex:"):
		return domain.CompileRegexMatch(strings.TrimPrefix(field, "regex:"))
	default:
		return domain.ExactMatch(field), nil
	}
}
