package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// Prompts are the fixed instructions read from the prompt file.
type Prompts struct {
	// developer message prepended to every GPT-family completion
	System string
	// default per-thread system prompt for the Claude command
	Claude string
}

// LoadPrompts reads a YAML file with `system_prompt` and `claude_system` keys.
// A missing file yields empty prompts.
func LoadPrompts(path string) (Prompts, error) {
	if path == "" {
		return Prompts{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Prompts{}, nil
		}
		return Prompts{}, fmt.Errorf("prompt file: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Prompts{}, fmt.Errorf("prompt file: %w", err)
	}
	return Prompts{
		System: v.GetString("system_prompt"),
		Claude: v.GetString("claude_system"),
	}, nil
}
