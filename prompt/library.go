package prompt

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/teranos/shopper/errors"
	"github.com/teranos/shopper/logger"
)

// Built-in prompt names
const (
	Describe       = "describe"
	DescribeLong   = "describe_long"
	Recommend      = "recommend"
	Expand         = "expand"
	Format         = "format"
	Question       = "question"
	EvalPlain      = "eval_plain"
	EvalEngineered = "eval_engineered"
	TuneUser       = "tune_user"
	TuneDescribe   = "tune_describe"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// Prompt is a parsed document ready to render
type Prompt struct {
	Metadata
	template *Template
	source   string
}

// Render interpolates the prompt body with values
func (p *Prompt) Render(values Values) (string, error) {
	out, err := p.template.Execute(values)
	if err != nil {
		return "", errors.Wrapf(err, "prompt %s", p.Name)
	}
	return out, nil
}

// Placeholders returns the fields the body references
func (p *Prompt) Placeholders() []string {
	return p.template.GetPlaceholders()
}

// Body returns the unrendered template body
func (p *Prompt) Body() string {
	return p.template.Raw()
}

// Source is where the prompt was loaded from: "builtin" or a file path
func (p *Prompt) Source() string {
	return p.source
}

// Library holds the named prompts stages render from.
// Files in the override directory replace built-ins of the same name.
type Library struct {
	mu      sync.RWMutex
	prompts map[string]*Prompt
}

// NewLibrary loads the built-in prompts, then any *.md files in overrideDir.
// An empty overrideDir means built-ins only.
func NewLibrary(overrideDir string) (*Library, error) {
	lib := &Library{prompts: make(map[string]*Prompt)}

	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, errors.Wrap(err, "failed to read built-in prompts")
	}
	for _, entry := range entries {
		data, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read built-in prompt %s", entry.Name())
		}
		if err := lib.add(entry.Name(), string(data), "builtin"); err != nil {
			return nil, err
		}
	}

	if overrideDir == "" {
		return lib, nil
	}

	paths, err := filepath.Glob(filepath.Join(overrideDir, "*.md"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid prompts directory %s", overrideDir)
	}
	log := logger.ComponentLogger("prompt")
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read prompt %s", path)
		}
		if err := lib.add(filepath.Base(path), string(data), path); err != nil {
			return nil, err
		}
		log.Debugw("Loaded prompt override", logger.FieldFile, path)
	}
	return lib, nil
}

func (l *Library) add(filename, content, source string) error {
	doc, err := ParseDocument(content)
	if err != nil {
		return errors.Wrapf(err, "prompt %s", source)
	}
	if doc.Metadata.Name == "" {
		doc.Metadata.Name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	tmpl, err := Parse(doc.Body)
	if err != nil {
		return errors.Wrapf(err, "prompt %s", source)
	}

	l.mu.Lock()
	l.prompts[doc.Metadata.Name] = &Prompt{Metadata: doc.Metadata, template: tmpl, source: source}
	l.mu.Unlock()
	return nil
}

// Get returns the named prompt
func (l *Library) Get(name string) (*Prompt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.prompts[name]
	if !ok {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrNotFound, "prompt %q", name),
			"available prompts: "+strings.Join(l.namesLocked(), ", "),
		)
	}
	return p, nil
}

// Names lists every prompt in the library, sorted
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.namesLocked()
}

func (l *Library) namesLocked() []string {
	names := make([]string, 0, len(l.prompts))
	for name := range l.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
