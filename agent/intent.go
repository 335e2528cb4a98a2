package agent

import (
	"strings"

	minder "github.com/hollowlog/minder"
)

// Intent classifies a command as a todo mutation or a knowledge/general query.
type Intent int

const (
	IntentQuery Intent = iota
	IntentTodoMutation
)

// String returns the wire name of the intent ("todo" or "query").
func (i Intent) String() string {
	if i == IntentTodoMutation {
		return "todo"
	}
	return "query"
}

// todoKeywords is the fixed keyword set used by Classify. Matching is by
// substring, so "add" also matches inside longer words. That imprecision is a
// known limitation of the heuristic: "show me my ideas" classifies as a todo
// mutation when a todos context is present, even though it may be a query.
var todoKeywords = []string{
	"todo", "task", "add", "create", "delete", "remove",
	"update", "mark", "complete", "list", "show",
}

// Classify decides the intent of a command. An explicit hint always wins.
// Without a hint, a command is a todo mutation iff a todos context was sent
// (any non-empty string, "[]" included) and the text contains a todo keyword.
func Classify(text, hint string, hasTodosContext bool) Intent {
	switch hint {
	case minder.HintTodo:
		return IntentTodoMutation
	case minder.HintQuery:
		return IntentQuery
	}

	if !hasTodosContext {
		return IntentQuery
	}

	lower := strings.ToLower(text)
	for _, kw := range todoKeywords {
		if strings.Contains(lower, kw) {
			return IntentTodoMutation
		}
	}
	return IntentQuery
}
