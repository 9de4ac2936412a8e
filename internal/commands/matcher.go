// Package commands matches utterances against a table of local shortcuts
// that are answered without a model call.
package commands

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var defaultTable []byte

// Spec is one entry of the YAML command table.
type Spec struct {
	Name     string `yaml:"name"`
	Pattern  string `yaml:"pattern"`
	Response string `yaml:"response"`
	Open     string `yaml:"open,omitempty"`
	Action   string `yaml:"action,omitempty"`
}

type table struct {
	Commands []Spec `yaml:"commands"`
}

// Result is a matched shortcut.
type Result struct {
	Name     string
	Response string
	OpenURL  string
	Action   string
}

type command struct {
	spec     Spec
	re       *regexp.Regexp
	response *template.Template
	open     *template.Template
}

// Matcher holds a compiled command table.
type Matcher struct {
	commands []command
}

// Default returns the matcher built from the embedded table.
func Default() (*Matcher, error) {
	return Parse(defaultTable)
}

// Load reads a YAML table from path. An empty path yields the default table.
func Load(path string) (*Matcher, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read command table: %w", err)
	}
	return Parse(data)
}

// Parse compiles a YAML command table.
func Parse(data []byte) (*Matcher, error) {
	var t table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse command table: %w", err)
	}

	m := &Matcher{}
	for _, s := range t.Commands {
		c, err := compile(s)
		if err != nil {
			return nil, fmt.Errorf("command %q: %w", s.Name, err)
		}
		m.commands = append(m.commands, c)
	}
	return m, nil
}

func compile(s Spec) (command, error) {
	if s.Pattern == "" {
		return command{}, fmt.Errorf("pattern is required")
	}
	if s.Response == "" {
		return command{}, fmt.Errorf("response is required")
	}
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return command{}, fmt.Errorf("compile pattern: %w", err)
	}
	resp, err := template.New(s.Name).Parse(s.Response)
	if err != nil {
		return command{}, fmt.Errorf("parse response: %w", err)
	}
	c := command{spec: s, re: re, response: resp}
	if s.Open != "" {
		c.open, err = template.New(s.Name + "-open").Parse(s.Open)
		if err != nil {
			return command{}, fmt.Errorf("parse open: %w", err)
		}
	}
	return c, nil
}

// Match returns the first shortcut whose pattern matches text.
func (m *Matcher) Match(text string) (Result, bool) {
	if m == nil {
		return Result{}, false
	}
	norm := strings.ToLower(strings.TrimSpace(text))
	for _, c := range m.commands {
		groups := c.re.FindStringSubmatch(norm)
		if groups == nil {
			continue
		}
		data := struct{ Args []string }{Args: groups[1:]}

		resp, err := render(c.response, data)
		if err != nil {
			continue
		}
		res := Result{Name: c.spec.Name, Response: resp, Action: c.spec.Action}
		if c.open != nil {
			if res.OpenURL, err = render(c.open, data); err != nil {
				continue
			}
		}
		return res, true
	}
	return Result{}, false
}

// Specs returns the loaded table.
func (m *Matcher) Specs() []Spec {
	out := make([]Spec, len(m.commands))
	for i, c := range m.commands {
		out[i] = c.spec
	}
	return out
}

func render(t *template.Template, data any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", err
	}
	return sb.String(), nil
}
