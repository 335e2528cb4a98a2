package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	minder "github.com/hollowlog/minder"
)

// writeEntry writes a single TOML-formatted transcript entry to w.
func writeEntry(w io.Writer, input string, resp *minder.Response) {
	fmt.Fprintf(w, "# %s\n\n", strings.Repeat("═", 60))

	fmt.Fprintln(w, "[request]")
	fmt.Fprintf(w, "timestamp = %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(w, "input = %s\n", tomlQuote(input))
	fmt.Fprintln(w)

	writeResponse(w, resp)
}

func writeResponse(w io.Writer, resp *minder.Response) {
	if resp.Error != nil {
		fmt.Fprintln(w, "[error]")
		fmt.Fprintf(w, "code = %s\n", tomlQuote(resp.Error.Code))
		fmt.Fprintf(w, "message = %s\n", tomlQuote(resp.Error.Message))
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w, "[response]")
	fmt.Fprintf(w, "kind = %s\n", tomlQuote(resp.Kind))

	if op := resp.Operation; op != nil {
		fmt.Fprintf(w, "operation = %s\n", tomlQuote(op.Kind))
		if op.TodoID != "" {
			fmt.Fprintf(w, "todo_id = %s\n", tomlQuote(op.TodoID))
		}
		if len(op.Fields) > 0 {
			fmt.Fprintf(w, "data = %s\n", tomlQuote(string(op.Fields)))
		}
		fmt.Fprintf(w, "storage_command = %s\n", tomlQuote(op.StorageCommand))
	}
	if len(resp.Todos) > 0 {
		fmt.Fprintf(w, "todos = %s\n", tomlQuote(string(resp.Todos)))
	}
	if resp.Answer != "" {
		fmt.Fprintf(w, "answer = %s\n", tomlQuote(resp.Answer))
	}
	fmt.Fprintln(w)
}

// tomlQuote returns a TOML basic-string quoted value.
func tomlQuote(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\t", "\\t")
	return "\"" + s + "\""
}
