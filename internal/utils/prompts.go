package utils

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
)

//go:embed prompts
var promptFiles embed.FS

// LoadPrompt loads a prompt from the embedded markdown files
func LoadPrompt(path string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", path))
	if err != nil {
		return "", fmt.Errorf("failed to load prompt %s: %w", path, err)
	}
	return string(content), nil
}

// MustLoadPrompt is LoadPrompt for prompts that ship with the binary.
func MustLoadPrompt(path string) string {
	content, err := LoadPrompt(path)
	if err != nil {
		panic(err)
	}
	return content
}

// JSONBlock indents v for inclusion in a prompt. Values are passed as
// template variables so their braces never reach the template parser.
func JSONBlock(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Section renders an optional titled block, or nothing when body is blank.
func Section(title, body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	return fmt.Sprintf("\n%s:\n%s\n", title, body)
}
