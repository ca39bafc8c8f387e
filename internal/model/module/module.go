package module

import (
	"fmt"
	"strings"
)

// Name identifies one of the five model invocation configurations.
type Name string

const (
	Dialogue Name = "dialogue"
	Summary  Name = "summary"
	Story    Name = "story"
	Memory   Name = "memory"
	Letter   Name = "letter"
)

// Names 按固定顺序返回全部模块。
func Names() []Name {
	return []Name{Dialogue, Summary, Story, Memory, Letter}
}

// Required reports whether the module must always be enabled.
func (n Name) Required() bool {
	return n == Dialogue || n == Summary || n == Story
}

// Valid reports whether n is a known module.
func (n Name) Valid() bool {
	for _, name := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// Settings 描述单个模块的系统提示词与输出格式。
type Settings struct {
	SystemPrompt string `json:"systemPrompt" yaml:"system_prompt"`
	JSONMode     bool   `json:"jsonMode" yaml:"json_mode"`
	Enabled      bool   `json:"enabled" yaml:"enabled"`
}

// Set holds the settings of every module for one session.
type Set map[Name]Settings

// InvalidError reports a module whose settings cannot be used.
type InvalidError struct {
	Module Name
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("module %s: %s", e.Module, e.Reason)
}

// Normalized returns a copy where required modules are enabled, prompts are
// trimmed and missing optional modules are present but disabled.
func (s Set) Normalized() Set {
	out := make(Set, len(Names()))
	for _, name := range Names() {
		settings := s[name]
		settings.SystemPrompt = strings.TrimSpace(settings.SystemPrompt)
		if name.Required() {
			settings.Enabled = true
		}
		out[name] = settings
	}
	return out
}

// Validate 校验所有启用的模块都配置了系统提示词。
func (s Set) Validate() error {
	for name := range s {
		if !name.Valid() {
			return &InvalidError{Module: name, Reason: "unknown module"}
		}
	}
	for _, name := range Names() {
		settings, ok := s[name]
		if !ok {
			if name.Required() {
				return &InvalidError{Module: name, Reason: "settings are required"}
			}
			continue
		}
		if (settings.Enabled || name.Required()) && strings.TrimSpace(settings.SystemPrompt) == "" {
			return &InvalidError{Module: name, Reason: "system prompt is required"}
		}
	}
	return nil
}

// Enabled reports whether name is switched on in s.
func (s Set) Enabled(name Name) bool {
	if name.Required() {
		return true
	}
	return s[name].Enabled
}
