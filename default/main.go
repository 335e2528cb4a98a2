// Package defaults provides embedded default assets (prompt templates and config).
package defaults

import _ "embed"

//go:embed todo_prompt.md
var DefaultTodoPrompt string

//go:embed query_prompt.md
var DefaultQueryPrompt string

//go:embed default_config.toml
var DefaultConfigTOML []byte
