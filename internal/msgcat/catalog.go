// Package msgcat holds every prompt and reply the agents send, as text/template
// strings keyed by dotted paths in YAML.
package msgcat

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var embedded embed.FS

const embeddedName = "messages.en.yaml"

// Keys used by the harness.
const (
	KeyRetryPrefix   = "match.retry_prefix"
	KeyMovePrompt    = "match.move_prompt"
	KeyLogPrompt     = "log.prompt"
	KeyLogResponse   = "log.response"
	KeyLogEvaluation = "log.evaluation"
	KeyFinished      = "green.finished"
	KeyBadRequest    = "green.bad_request"
	KeyPeerAnswer    = "peer.answer"
	KeyPeerEngine    = "peer.reason_engine"
	KeyPeerRandom    = "peer.reason_random"
	KeyPeerNoLegal   = "peer.unparseable"
)

// Catalog is immutable once built, so it is safe to share between sessions.
// Templates run with missingkey=error.
type Catalog struct {
	templates map[string]*template.Template
}

// New loads the embedded messages, then any *.yaml / *.yml files in
// overrideDir in lexical order. A key may be overridden by at most one file.
func New(overrideDir string) (*Catalog, error) {
	texts, err := readTree(embedded, embeddedName)
	if err != nil {
		return nil, fmt.Errorf("embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		overrides, err := readOverrides(os.DirFS(dir))
		if err != nil {
			return nil, fmt.Errorf("message overrides %s: %w", dir, err)
		}
		for k, v := range overrides {
			texts[k] = v
		}
	}

	c := &Catalog{templates: make(map[string]*template.Template, len(texts))}
	for key, text := range texts {
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", key, err)
		}
		c.templates[key] = t
	}
	return c, nil
}

// Default is the embedded catalog alone.
func Default() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

func readOverrides(fsys fs.FS) (map[string]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".yaml", ".yml":
			if !e.IsDir() {
				names = append(names, e.Name())
			}
		}
	}
	slices.Sort(names)

	out := make(map[string]string)
	owner := make(map[string]string)
	for _, name := range names {
		texts, err := readTree(fsys, name)
		if err != nil {
			return nil, err
		}
		for k, v := range texts {
			if prev, dup := owner[k]; dup {
				return nil, fmt.Errorf("key %q set by both %s and %s", k, prev, name)
			}
			owner[k] = name
			out[k] = v
		}
	}
	return out, nil
}

// readTree decodes one YAML file into flattened dot keys.
func readTree(fsys fs.FS, name string) (map[string]string, error) {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	out := make(map[string]string)
	if len(root.Content) == 0 {
		return out, nil
	}
	if err := walk(root.Content[0], "", out); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func walk(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := walk(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil
		}
		if prefix == "" {
			return fmt.Errorf("line %d: value without a key", n.Line)
		}
		out[prefix] = n.Value
		return nil
	default:
		return fmt.Errorf("line %d: %s must be a string or a mapping", n.Line, prefix)
	}
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.templates[strings.TrimSpace(key)]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Keys lists the loaded template keys, sorted.
func (c *Catalog) Keys() []string {
	keys := make([]string, 0, len(c.templates))
	for k := range c.templates {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
