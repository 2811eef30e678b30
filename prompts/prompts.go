// Package prompts renders the system and user prompt templates. Templates
// are embedded at build time and can be replaced wholesale through
// environment variables, which keeps prompt experiments out of the binary.
package prompts

import (
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/askterm/askterm/errors"
)

//go:embed system_prompt.md
var systemPrompt string

const userPrompt = `
User's request:
{{.UserInput}}
`

// Environment overrides for the embedded templates.
const (
	EnvSystemPrompt = "ASKTERM_SYSTEM_PROMPT"
	EnvUserPrompt   = "ASKTERM_USER_PROMPT"
)

// Vars holds every value the templates may reference.
type Vars struct {
	UserOS    string
	UserArch  string
	UserShell string
	UserInput string
}

// RenderSystem produces the system prompt for the given host facts.
func RenderSystem(vars Vars) (string, error) {
	return render("system", envOrDefault(EnvSystemPrompt, systemPrompt), vars)
}

// RenderUser wraps the raw user input in the user prompt template.
func RenderUser(vars Vars) (string, error) {
	return render("user", envOrDefault(EnvUserPrompt, userPrompt), vars)
}

func render(name, text string, vars Vars) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "invalid %s prompt template", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, vars); err != nil {
		return "", errors.Wrapf(err, "failed to render %s prompt", name)
	}
	return strings.TrimSpace(sb.String()) + "\n", nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
