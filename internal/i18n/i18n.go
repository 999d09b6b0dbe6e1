// Package i18n serves the player-facing message catalogs.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

const catalogDir = "locales"

// Translator resolves a dot-separated key such as "daily.claimed".
type Translator interface {
	T(key string) string
	Lang() string
}

// catalog maps language -> flattened key -> message.
type catalog map[string]map[string]string

// Manager holds every loaded language and the one used as fallback.
type Manager struct {
	catalog     catalog
	defaultLang string
}

// Load reads the catalogs compiled into the binary.
func Load(defaultLang string) (*Manager, error) {
	return LoadFS(embedded, catalogDir, defaultLang)
}

// LoadFS reads every *.yaml / *.yml file in dir. Each file holds one or more
// top-level language keys with nested message trees.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Manager, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	c := catalog{}
	files := 0
	for _, entry := range entries {
		ext := strings.ToLower(path.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		files++
		if err := c.merge(fsys, path.Join(dir, entry.Name())); err != nil {
			return nil, err
		}
	}
	if files == 0 {
		return nil, fmt.Errorf("i18n: no catalogs in %s", dir)
	}

	if defaultLang == "" {
		defaultLang = "en"
	}
	if _, ok := c[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Manager{catalog: c, defaultLang: defaultLang}, nil
}

// Translator returns the translator for lang, or the default language when
// lang is empty or unknown.
func (m *Manager) Translator(lang string) Translator {
	if m == nil {
		return translator{}
	}

	lang = strings.ToLower(strings.TrimSpace(lang))
	if _, ok := m.catalog[lang]; !ok {
		lang = m.defaultLang
	}
	return translator{lang: lang, primary: m.catalog[lang], fallback: m.catalog[m.defaultLang]}
}

// Match picks a translator from an Accept-Language header. Region subtags
// are ignored, so "tr-TR" selects "tr". Quality weights are not ranked; the
// first supported tag wins.
func (m *Manager) Match(acceptLanguage string) Translator {
	if m == nil {
		return translator{}
	}
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		base, _, _ := strings.Cut(strings.ToLower(tag), "-")
		if _, ok := m.catalog[base]; ok {
			return m.Translator(base)
		}
	}
	return m.Translator("")
}

// Languages lists the loaded languages.
func (m *Manager) Languages() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.catalog))
	for lang := range m.catalog {
		out = append(out, lang)
	}
	return out
}

// Format translates key with tr and fills its verbs with args. A nil
// translator formats the key itself.
func Format(tr Translator, key string, args ...any) string {
	msg := key
	if tr != nil {
		msg = tr.T(key)
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

type translator struct {
	lang     string
	primary  map[string]string
	fallback map[string]string
}

func (t translator) Lang() string { return t.lang }

// T returns the message for key, falling back to the default language and
// finally to the key itself.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if v, ok := t.primary[key]; ok {
		return v
	}
	if v, ok := t.fallback[key]; ok {
		return v
	}
	return key
}

func (c catalog) merge(fsys fs.FS, name string) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("i18n: read file %s: %w", name, err)
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("i18n: parse file %s: %w", name, err)
	}

	for lang, node := range doc {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		messages := c[lang]
		if messages == nil {
			messages = map[string]string{}
		}
		collect("", &node, messages)
		if len(messages) > 0 {
			c[lang] = messages
		}
	}
	return nil
}

// collect walks a YAML mapping and stores every scalar leaf under its
// dotted path.
func collect(prefix string, node *yaml.Node, out map[string]string) {
	switch node.Kind {
	case yaml.ScalarNode:
		if prefix != "" {
			out[prefix] = node.Value
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i].Value
			if key == "" {
				continue
			}
			if prefix != "" {
				key = prefix + "." + key
			}
			collect(key, node.Content[i+1], out)
		}
	}
}
