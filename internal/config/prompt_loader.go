package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultPromptDir is the subdirectory within the user's config directory.
const defaultPromptDir = ".config/alttext/prompts"

// LoadPromptContent resolves the configured prompt path and reads its content.
// An empty path returns fallback. An absolute path is used directly; a
// relative path is tried against the working directory first and then as a
// filename within ~/.config/alttext/prompts/.
func LoadPromptContent(configuredPath, fallback string) (string, error) {
	if configuredPath == "" {
		return fallback, nil
	}

	candidates := []string{configuredPath}
	if !filepath.IsAbs(configuredPath) {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			candidates = append(candidates, filepath.Join(homeDir, defaultPromptDir, configuredPath))
		}
	}

	for _, path := range candidates {
		promptBytes, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("failed to read prompt file '%s': %w", path, err)
		}
		prompt := strings.TrimSpace(string(promptBytes))
		if prompt == "" {
			return "", fmt.Errorf("prompt file '%s' is empty", path)
		}
		return prompt, nil
	}
	return "", fmt.Errorf("prompt file not found at %s", strings.Join(candidates, " or "))
}
