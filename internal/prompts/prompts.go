package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Built-in template names.
const (
	PrivacyDefault        = "privacy_remover_default"
	PrivacyLoosedContact  = "privacy_remover_loosed_contact"
	ClassificationDefault = "classification_default_v1"
	ClassificationPreSale = "classification_pre_sales_focus"
	IncompleteSales       = "incomplete_sales_elements"
)

// Registry holds prompt templates by name. Templates are opaque text with
// {usertxt} or {transcript} placeholders.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]string
}

// NewRegistry returns a registry seeded with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]string, len(builtin))}
	for k, v := range builtin {
		r.templates[k] = v
	}
	return r
}

// LoadDir reads every <name>.prompt file in dir, overriding built-ins of the
// same name. A missing dir is not an error.
func (r *Registry) LoadDir(dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.prompt"))
	if err != nil {
		return 0, fmt.Errorf("glob prompts: %w", err)
	}
	loaded := 0
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return loaded, fmt.Errorf("read prompt %s: %w", filepath.Base(f), err)
		}
		name := strings.TrimSuffix(filepath.Base(f), ".prompt")
		r.Set(name, string(b))
		loaded++
	}
	return loaded, nil
}

func (r *Registry) Set(name, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[name] = template
}

func (r *Registry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Names lists the available templates in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.templates))
	for k := range r.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Render fills template name with text.
func (r *Registry) Render(name, text string) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown prompt %q (available: %s)", name, strings.Join(r.Names(), ", "))
	}
	return strings.NewReplacer("{usertxt}", text, "{transcript}", text).Replace(t), nil
}
