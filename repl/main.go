// Command minder-repl is an interactive test client for the minder daemon.
// It reads one command per line, sends it over the socket, and writes
// structured TOML transcripts to stdout.
//
// Usage:
//
//	./minder-repl                # interactive, TOML on screen
//	./minder-repl > log.toml     # prompt on stderr, TOML to file
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	minder "github.com/hollowlog/minder"
	"github.com/hollowlog/minder/client"
)

const prompt = "> "

// session holds the per-run settings and mutable context that go into
// every envelope. The daemon rejects commands missing modelId or
// generationConfig, so command always populates both.
type session struct {
	model       string
	temperature float64
	maxTokens   int

	hint    string
	todos   string
	history []minder.Exchange
}

func (s *session) command(text string) *minder.Command {
	return &minder.Command{
		Text:    text,
		ModelID: s.model,
		GenerationConfig: &minder.GenerationConfig{
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		},
		OperationHint:       s.hint,
		ExistingTodosJSON:   s.todos,
		ConversationHistory: s.history,
	}
}

func main() {
	listen := flag.String("listen", "", "daemon address (default: resolved socket path)")
	model := flag.String("model", "gemini-2.0-flash", "model id sent with each command")
	temperature := flag.Float64("temperature", 0.7, "model sampling temperature")
	maxTokens := flag.Int("max-tokens", 1024, "model output token cap")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	token := os.Getenv("MINDER_API_KEY")
	if token == "" {
		token = os.Getenv("GEMINI_API_KEY")
	}
	if token == "" {
		fmt.Fprintln(os.Stderr, "error: MINDER_API_KEY or GEMINI_API_KEY must be set")
		os.Exit(1)
	}

	addr := *listen
	if addr == "" {
		addr = minder.ResolveListen(minder.DefaultConfig())
	}
	if addr == "" {
		addr = "unix://" + minder.DefaultSocketPath()
	}

	mgr := client.New(addr)
	defer mgr.Close()
	mgr.SetCredentials(token)

	fmt.Fprintf(os.Stderr, "minder repl (%s)\n", addr)
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  :hint <todo|query>  force intent for the next commands")
	fmt.Fprintln(os.Stderr, "  :todos <json>       set the existing-todos context")
	fmt.Fprintln(os.Stderr, "  :reset              clear history and context")
	fmt.Fprintln(os.Stderr, "  :quit               exit")
	fmt.Fprintln(os.Stderr)

	sess := &session{
		model:       *model,
		temperature: *temperature,
		maxTokens:   *maxTokens,
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, prompt)
		if !scanner.Scan() {
			break
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		switch {
		case text == ":quit" || text == ":q":
			return
		case text == ":reset":
			sess.hint, sess.todos, sess.history = "", "", nil
			fmt.Fprintln(os.Stderr, "context cleared")
			continue
		case strings.HasPrefix(text, ":hint "):
			h := strings.TrimSpace(strings.TrimPrefix(text, ":hint "))
			if h != minder.HintTodo && h != minder.HintQuery {
				fmt.Fprintf(os.Stderr, "error: unknown hint %q\n", h)
				continue
			}
			sess.hint = h
			continue
		case strings.HasPrefix(text, ":todos "):
			sess.todos = strings.TrimSpace(strings.TrimPrefix(text, ":todos "))
			continue
		}

		resp, err := mgr.Send(context.Background(), sess.command(text))
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		printSummary(os.Stderr, resp)
		writeEntry(os.Stdout, text, resp)

		// History travels most recent first.
		if resp.Success && resp.Kind == minder.HintQuery {
			sess.history = append([]minder.Exchange{{Command: text, Response: resp.Answer}}, sess.history...)
		}
	}
}

func printSummary(w *os.File, resp *minder.Response) {
	switch {
	case resp.Error != nil:
		fmt.Fprintf(w, "error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
	case resp.Operation != nil:
		op := resp.Operation
		fmt.Fprintf(w, "  %s", op.Kind)
		if op.TodoID != "" {
			fmt.Fprintf(w, " %s", op.TodoID)
		}
		if len(op.Fields) > 0 {
			fmt.Fprintf(w, " %s", string(op.Fields))
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintf(w, "  %s\n", resp.Answer)
	}
	fmt.Fprintln(w)
}
