// Package render renders named text templates for the files cratevendor generates.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
)

// Names of the templates every Templates set provides.
const (
	Readme          = "readme"
	RemovedManifest = "removed_manifest"
	RemovedLib      = "removed_lib"
	Vet             = "vet"
)

//go:embed templates/*.tmpl
var builtin embed.FS

// Renderer renders a named template with data.
type Renderer interface {
	Render(name string, data any) (string, error)
}

// Templates is a Renderer backed by text/template.
type Templates struct {
	tmpls map[string]*template.Template
}

var funcs = template.FuncMap{
	"quote": strconv.Quote,
	"join":  strings.Join,
	"yesno": func(b bool) string {
		if b {
			return "yes"
		}
		return "no"
	},
	"tomlList": func(items []string) string {
		quoted := make([]string, len(items))
		for i, s := range items {
			quoted[i] = strconv.Quote(s)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	},
}

// Load parses the standard templates. files maps a template name to a file
// path; names that are missing or map to "" use the built-in template.
func Load(files map[string]string) (*Templates, error) {
	t := &Templates{tmpls: make(map[string]*template.Template)}
	for _, name := range []string{Readme, RemovedManifest, RemovedLib, Vet} {
		var (
			text []byte
			err  error
		)
		if path := files[name]; path != "" {
			text, err = os.ReadFile(path)
		} else {
			text, err = builtin.ReadFile("templates/" + name + ".tmpl")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}
		if err := t.add(name, string(text)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Templates) add(name, text string) error {
	tmpl, err := template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	t.tmpls[name] = tmpl
	return nil
}

// Render executes the named template.
func (t *Templates) Render(name string, data any) (string, error) {
	tmpl, ok := t.tmpls[name]
	if !ok {
		return "", fmt.Errorf("unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
