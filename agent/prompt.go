package agent

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"
	"time"

	minder "github.com/hollowlog/minder"
	defaults "github.com/hollowlog/minder/default"
)

// recentHistoryWindow is how many prior general exchanges the query prompt
// carries for variety biasing.
const recentHistoryWindow = 5

// historyPreviewLen caps serialized prior responses.
const historyPreviewLen = 300

// generalKeywords mark an exchange as a general (non-knowledge-base) query,
// eligible for the avoid-repetition history.
var generalKeywords = []string{"quote", "motivation", "productivity tip"}

// PromptBuilder renders model prompts from embedded templates, optionally
// overridden by files in the config directory.
type PromptBuilder struct {
	todoPrompt  string // custom todo template source, empty = use default
	queryPrompt string // custom query template source, empty = use default
}

// NewPromptBuilder creates a builder, loading custom templates if present.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		todoPrompt:  loadCustomPrompt(minder.TodoPromptPath()),
		queryPrompt: loadCustomPrompt(minder.QueryPromptPath()),
	}
}

// loadCustomPrompt loads a custom prompt template.
// Returns empty string if no custom prompt exists.
func loadCustomPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	slog.Info("loaded custom prompt", "path", path)
	return string(data)
}

type todoPromptData struct {
	ResolvedDate string
}

type queryPromptData struct {
	Today        string
	Weekday      string
	MonthName    string
	Day          int
	Year         int
	ResolvedDate string
}

// renderPrompt renders a template source, falling back to the default source
// when parsing or execution fails.
func renderPrompt(src, fallback string, data any) string {
	t, err := template.New("prompt").Parse(src)
	if err != nil {
		slog.Warn("failed to parse prompt template, falling back to default", "error", err)
		t, _ = template.New("prompt").Parse(fallback)
	}

	var buf strings.Builder
	if err := t.Execute(&buf, data); err != nil {
		slog.Warn("failed to execute prompt template, falling back to default", "error", err)
		t, _ = template.New("prompt").Parse(fallback)
		buf.Reset()
		t.Execute(&buf, data)
	}

	return strings.TrimRight(buf.String(), " \t\n")
}

// TodoSystem renders the system prompt for a todo mutation. resolvedDate may
// be empty when the command holds no relative date.
func (b *PromptBuilder) TodoSystem(resolvedDate string) string {
	src := b.todoPrompt
	if src == "" {
		src = defaults.DefaultTodoPrompt
	}
	return renderPrompt(src, defaults.DefaultTodoPrompt, todoPromptData{ResolvedDate: resolvedDate})
}

// TodoUser builds the user message for a todo mutation: the command, a
// resolved-date reminder, and the current todos payload.
func (b *PromptBuilder) TodoUser(text, todosJSON, resolvedDate string) string {
	var sb strings.Builder

	sb.WriteString("Parse this user message and return ONLY the JSON response, no additional text.\n\n")
	sb.WriteString("USER MESSAGE:\n")
	sb.WriteString(text)
	sb.WriteString("\n")

	if resolvedDate != "" {
		fmt.Fprintf(&sb, "\nCALCULATED DATE (use verbatim): %q\n", resolvedDate)
	}

	if todosJSON != "" {
		sb.WriteString("\nCurrent todos in localStorage:\n")
		sb.WriteString(todosJSON)
		sb.WriteString("\n")
	}

	return sb.String()
}

// QuerySystem renders the system prompt for a query, embedding the server's
// current-date context and any resolved relative date.
func (b *PromptBuilder) QuerySystem(now time.Time, resolvedDate string) string {
	src := b.queryPrompt
	if src == "" {
		src = defaults.DefaultQueryPrompt
	}
	data := queryPromptData{
		Today:        now.Format("2006-01-02"),
		Weekday:      now.Weekday().String(),
		MonthName:    now.Month().String(),
		Day:          now.Day(),
		Year:         now.Year(),
		ResolvedDate: resolvedDate,
	}
	return renderPrompt(src, defaults.DefaultQueryPrompt, data)
}

// QueryUser builds the user message for a query: the question, the serialized
// avoid-repetition history, and the knowledge-base context.
func (b *PromptBuilder) QueryUser(text string, history []minder.Exchange, notesSummary string) string {
	var sb strings.Builder

	sb.WriteString("## User's Question\n\n")
	sb.WriteString(text)
	sb.WriteString("\n\n")
	sb.WriteString(serializeHistory(history))
	sb.WriteString("\n")
	sb.WriteString(notesSummary)

	return sb.String()
}

// SelectHistory partitions prior exchanges for the query prompt. History is
// ordered most recent first on the wire; the first recentHistoryWindow
// general exchanges are carried verbatim, the remaining general exchanges
// form the pool for embedding-based related selection. The recent list is
// truncated, never padded.
func SelectHistory(history []minder.Exchange) (recent, overflow []minder.Exchange) {
	for _, ex := range history {
		if !isGeneralCommand(ex.Command) {
			continue
		}
		if len(recent) < recentHistoryWindow {
			recent = append(recent, ex)
		} else {
			overflow = append(overflow, ex)
		}
	}
	return recent, overflow
}

func isGeneralCommand(cmd string) bool {
	lower := strings.ToLower(cmd)
	for _, kw := range generalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// serializeHistory renders prior exchanges most recent first, responses
// truncated, under an explicit do-not-repeat instruction.
func serializeHistory(history []minder.Exchange) string {
	if len(history) == 0 {
		return "## Conversation History\n\nNo previous conversation history. This is a fresh request - provide unique content with full variety.\n"
	}

	var sb strings.Builder
	sb.WriteString("## Previous Conversation History (AVOID REPEATING THESE)\n\n")
	sb.WriteString("Provide COMPLETELY DIFFERENT content than the exchanges below: different quotes, authors, themes, formats, and wording.\n\n")

	for i, ex := range history {
		preview := ex.Response
		if len(preview) > historyPreviewLen {
			preview = preview[:historyPreviewLen] + "..."
		}
		fmt.Fprintf(&sb, "**Previous Query %d:**\nUser: %q\nYour Response: %q\n\n", i+1, ex.Command, preview)
	}

	sb.WriteString("This is a NEW, FRESH request. Choose something entirely different.\n")
	return sb.String()
}
