// Package catalog holds the process-wide table of localized chat replies.
// It is built once and never mutated, so lookups need no locking.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed responses.yaml
var builtinResponses []byte

// Entry is one semantic key with its localized texts.
type Entry struct {
	Key   string
	Texts map[string]string
}

// Catalog resolves (key, language) to text. The zero value is not usable;
// build one with New, Parse or Builtin.
type Catalog struct {
	defaultLang string
	entries     map[string]map[string]string
}

type catalogFile struct {
	Default string                       `yaml:"default"`
	Entries map[string]map[string]string `yaml:"entries"`
}

var (
	builtinOnce sync.Once
	builtin     *Catalog
	builtinErr  error
)

// Builtin returns the embedded catalog, parsed once per process.
func Builtin() (*Catalog, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = Parse(builtinResponses)
	})
	return builtin, builtinErr
}

// Parse reads a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	entries := make([]Entry, 0, len(file.Entries))
	for k, texts := range file.Entries {
		entries = append(entries, Entry{Key: k, Texts: texts})
	}
	return New(file.Default, entries...)
}

// New copies entries into a read-only catalog. Language codes are
// lowercased; blank keys and blank texts are dropped.
func New(defaultLang string, entries ...Entry) (*Catalog, error) {
	defaultLang = normLang(defaultLang)
	if defaultLang == "" {
		return nil, errors.New("catalog default language is required")
	}
	c := &Catalog{defaultLang: defaultLang, entries: make(map[string]map[string]string, len(entries))}
	for _, e := range entries {
		key := strings.TrimSpace(e.Key)
		if key == "" {
			continue
		}
		texts := c.entries[key]
		if texts == nil {
			texts = make(map[string]string, len(e.Texts))
			c.entries[key] = texts
		}
		for lang, text := range e.Texts {
			if strings.TrimSpace(text) == "" {
				continue
			}
			texts[normLang(lang)] = text
		}
	}
	return c, nil
}

// DefaultLanguage is the language used when a key lacks the requested one.
func (c *Catalog) DefaultLanguage() string { return c.defaultLang }

// Lookup never fails: it tries (key, lang), then (key, default language),
// and finally returns key itself.
func (c *Catalog) Lookup(key, lang string) string {
	texts, ok := c.entries[key]
	if !ok {
		return key
	}
	if text, ok := texts[normLang(lang)]; ok {
		return text
	}
	if text, ok := texts[c.defaultLang]; ok {
		return text
	}
	return key
}

// Has reports whether an exact (key, lang) entry exists.
func (c *Catalog) Has(key, lang string) bool {
	_, ok := c.entries[key][normLang(lang)]
	return ok
}

// Keys lists catalog keys in sorted order.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func normLang(lang string) string {
	return strings.ToLower(strings.TrimSpace(lang))
}

// WithDefault returns a copy of c that falls back to lang instead.
func (c *Catalog) WithDefault(lang string) (*Catalog, error) {
	entries := make([]Entry, 0, len(c.entries))
	for key, texts := range c.entries {
		entries = append(entries, Entry{Key: key, Texts: texts})
	}
	return New(lang, entries...)
}
