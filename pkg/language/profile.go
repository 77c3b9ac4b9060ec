// Package language scores free text against per-language lexicons to guess
// which supported language a farmer wrote in.
package language

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed lexicons.yaml
var builtinLexicons []byte

// Profile is the static description of one supported language.
type Profile struct {
	Code       string   `yaml:"code"`
	Name       string   `yaml:"name"`
	NativeName string   `yaml:"native_name"`
	Region     string   `yaml:"region"`
	Words      []string `yaml:"words"`
	Phrases    []string `yaml:"phrases"`
	// Grammar entries are co-occurrence templates written "A + B".
	Grammar []string `yaml:"grammar"`
}

// Set is an immutable, priority-ordered collection of profiles. The first
// profile is always the default language.
type Set struct {
	profiles []Profile
	index    map[string]int
}

type lexiconFile struct {
	Default   string    `yaml:"default"`
	Languages []Profile `yaml:"languages"`
}

var (
	builtinOnce sync.Once
	builtinSet  *Set
	builtinErr  error
)

// Builtin returns the embedded profile set, parsed once per process.
func Builtin() (*Set, error) {
	builtinOnce.Do(func() {
		builtinSet, builtinErr = ParseProfiles(builtinLexicons)
	})
	return builtinSet, builtinErr
}

// ParseProfiles reads a YAML lexicon document.
func ParseProfiles(data []byte) (*Set, error) {
	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse lexicons: %w", err)
	}
	return NewSet(file.Default, file.Languages)
}

// NewSet validates profiles and moves defaultCode to the front. Remaining
// profiles keep their given order, which is the tie-break priority.
func NewSet(defaultCode string, profiles []Profile) (*Set, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no language profiles")
	}
	defaultCode = strings.ToLower(strings.TrimSpace(defaultCode))
	ordered := make([]Profile, 0, len(profiles))
	index := make(map[string]int, len(profiles))
	var def *Profile
	for i := range profiles {
		p := profiles[i]
		p.Code = strings.ToLower(strings.TrimSpace(p.Code))
		if p.Code == "" {
			return nil, fmt.Errorf("profile %d: empty code", i)
		}
		if _, dup := index[p.Code]; dup {
			return nil, fmt.Errorf("duplicate language %q", p.Code)
		}
		index[p.Code] = -1
		if p.Code == defaultCode {
			def = &p
			continue
		}
		ordered = append(ordered, p)
	}
	if def == nil {
		return nil, fmt.Errorf("default language %q has no profile", defaultCode)
	}
	ordered = append([]Profile{*def}, ordered...)
	for i, p := range ordered {
		index[p.Code] = i
	}
	return &Set{profiles: ordered, index: index}, nil
}

// Default returns the default language code.
func (s *Set) Default() string { return s.profiles[0].Code }

// Supported reports whether code names a loaded profile.
func (s *Set) Supported(code string) bool {
	_, ok := s.index[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// Lookup returns the profile for code.
func (s *Set) Lookup(code string) (Profile, bool) {
	i, ok := s.index[strings.ToLower(strings.TrimSpace(code))]
	if !ok {
		return Profile{}, false
	}
	return s.profiles[i], true
}

// DisplayName returns the English name for code, or code itself.
func (s *Set) DisplayName(code string) string {
	if p, ok := s.Lookup(code); ok && p.Name != "" {
		return p.Name
	}
	return code
}

// Codes lists language codes in priority order.
func (s *Set) Codes() []string {
	out := make([]string, len(s.profiles))
	for i, p := range s.profiles {
		out[i] = p.Code
	}
	return out
}

// WithDefault returns a copy of s with code as the default language.
func (s *Set) WithDefault(code string) (*Set, error) {
	return NewSet(code, s.profiles)
}
