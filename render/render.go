// Package render turns named message templates into status text.
//
// Templates use the Django/Jinja syntax of pongo2. A default set is compiled
// into the binary; a directory given to New is consulted first, so individual
// templates can be replaced without rebuilding.
package render

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

const (
	Report         = "report"
	NewFollow      = "new_follow"
	MissingAltText = "missing_alt_text"
	DiscussPost    = "discuss_post"
)

// Names lists every template the bot renders.
var Names = []string{Report, NewFollow, MissingAltText, DiscussPost}

//go:embed templates/*.txt
var templateFS embed.FS

type Renderer struct {
	set *pongo2.TemplateSet

	lk    sync.Mutex
	cache map[string]*pongo2.Template
}

// New returns a renderer. If overrideDir is non-empty, templates found there
// take precedence over the embedded defaults.
func New(overrideDir string) (*Renderer, error) {
	var loaders []pongo2.TemplateLoader
	if overrideDir != "" {
		local, err := pongo2.NewLocalFileSystemLoader(overrideDir)
		if err != nil {
			return nil, fmt.Errorf("template directory: %w", err)
		}
		loaders = append(loaders, local)
	}
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	loaders = append(loaders, pongo2.NewFSLoader(sub))

	return &Renderer{
		set:   pongo2.NewSet("discussbot", loaders...),
		cache: make(map[string]*pongo2.Template),
	}, nil
}

func (r *Renderer) template(name string) (*pongo2.Template, error) {
	r.lk.Lock()
	defer r.lk.Unlock()

	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}
	tpl, err := r.set.FromFile(name + ".txt")
	if err != nil {
		return nil, err
	}
	r.cache[name] = tpl
	return tpl, nil
}

// Render executes the named template with data and returns the trimmed result.
func (r *Renderer) Render(name string, data map[string]any) (string, error) {
	tpl, err := r.template(name)
	if err != nil {
		return "", fmt.Errorf("loading template %q: %w", name, err)
	}
	out, err := tpl.Execute(pongo2.Context(data))
	if err != nil {
		return "", fmt.Errorf("rendering template %q: %w", name, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("template %q rendered empty output", name)
	}
	return out, nil
}

// Check loads every known template, so a broken override fails at startup
// instead of on first use.
func (r *Renderer) Check() error {
	for _, name := range Names {
		if _, err := r.template(name); err != nil {
			return fmt.Errorf("loading template %q: %w", name, err)
		}
	}
	return nil
}
