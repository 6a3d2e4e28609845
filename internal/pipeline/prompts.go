package pipeline

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

const promptsEnv = "PROMPTS_YAML"

//go:embed prompts.yaml
var promptsFS embed.FS

type yamlPrompts struct {
	Prompts       string `yaml:"prompts"`
	Version       int    `yaml:"version"`
	Analysis      string `yaml:"analysis"`
	Final         string `yaml:"final"`
	FixEvaluation string `yaml:"fix_evaluation"`
	CoachSystem   string `yaml:"coach_system"`
	CoachGreeting string `yaml:"coach_greeting"`
	LiveGreeting  string `yaml:"live_greeting"`
}

// Prompts holds the parsed instruction templates.
type Prompts struct {
	analysis      *template.Template
	final         *template.Template
	fixEvaluation *template.Template
	coachSystem   *template.Template
	coachGreeting string
	liveGreeting  string
}

var (
	promptsOnce  sync.Once
	promptsCache *Prompts
	promptsErr   error
)

// DefaultPrompts loads the prompt file once per process. PROMPTS_YAML overrides the embedded copy.
func DefaultPrompts() (*Prompts, error) {
	promptsOnce.Do(func() {
		data, err := readPrompts()
		if err != nil {
			promptsErr = err
			return
		}
		promptsCache, promptsErr = ParsePrompts(data)
	})
	return promptsCache, promptsErr
}

func readPrompts() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(promptsEnv)); path != "" {
		return os.ReadFile(path)
	}
	return promptsFS.ReadFile("prompts.yaml")
}

var templateFuncs = template.FuncMap{
	"deref": func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	},
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

func ParsePrompts(data []byte) (*Prompts, error) {
	var raw yamlPrompts
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompts: %w", err)
	}
	if strings.TrimSpace(raw.Prompts) == "" {
		return nil, errors.New("parse prompts: missing prompts key")
	}
	p := &Prompts{
		coachGreeting: strings.TrimSpace(raw.CoachGreeting),
		liveGreeting:  strings.TrimSpace(raw.LiveGreeting),
	}
	for _, t := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"analysis", raw.Analysis, &p.analysis},
		{"final", raw.Final, &p.final},
		{"fix_evaluation", raw.FixEvaluation, &p.fixEvaluation},
		{"coach_system", raw.CoachSystem, &p.coachSystem},
	} {
		if strings.TrimSpace(t.src) == "" {
			return nil, fmt.Errorf("parse prompts: %s is empty", t.name)
		}
		tmpl, err := template.New(t.name).Funcs(templateFuncs).Option("missingkey=error").Parse(t.src)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", t.name, err)
		}
		*t.dst = tmpl
	}
	if p.coachGreeting == "" || p.liveGreeting == "" {
		return nil, errors.New("parse prompts: greetings are required")
	}
	return p, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (p *Prompts) Analysis() (string, error) { return render(p.analysis, nil) }

func (p *Prompts) Final(prior PriorContext) (string, error) { return render(p.final, prior) }

func (p *Prompts) FixEvaluation(item FeedbackBrief) (string, error) {
	return render(p.fixEvaluation, item)
}

// CoachSystem renders the coach persona with the given context snapshot folded in.
// A nil snapshot renders the no-analysis variant.
func (p *Prompts) CoachSystem(snapshot any) (string, error) {
	return render(p.coachSystem, snapshot)
}

func (p *Prompts) CoachGreeting() string { return p.coachGreeting }

func (p *Prompts) LiveGreeting() string { return p.liveGreeting }
