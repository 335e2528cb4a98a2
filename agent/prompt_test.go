package agent

import (
	"fmt"
	"strings"
	"testing"
	"time"

	minder "github.com/hollowlog/minder"
)

func TestSelectHistoryWindow(t *testing.T) {
	var history []minder.Exchange
	for i := 0; i < 8; i++ {
		history = append(history, minder.Exchange{
			Command:  fmt.Sprintf("give me a quote %d", i),
			Response: fmt.Sprintf("quote %d", i),
		})
	}

	recent, overflow := SelectHistory(history)
	if len(recent) != recentHistoryWindow {
		t.Fatalf("recent = %d exchanges, want %d", len(recent), recentHistoryWindow)
	}
	if len(overflow) != 3 {
		t.Fatalf("overflow = %d exchanges, want 3", len(overflow))
	}
	// Wire order is most recent first; the window keeps the head.
	if recent[0].Command != "give me a quote 0" {
		t.Errorf("recent[0] = %q, want the most recent exchange", recent[0].Command)
	}
	if overflow[0].Command != "give me a quote 5" {
		t.Errorf("overflow[0] = %q, want the first exchange past the window", overflow[0].Command)
	}
}

func TestSelectHistoryFiltersNonGeneral(t *testing.T) {
	history := []minder.Exchange{
		{Command: "give me a quote", Response: "a"},
		{Command: "what's in my project notes?", Response: "b"},
		{Command: "any motivation for today?", Response: "c"},
	}

	recent, overflow := SelectHistory(history)
	if len(recent) != 2 {
		t.Fatalf("recent = %d exchanges, want 2", len(recent))
	}
	if len(overflow) != 0 {
		t.Fatalf("overflow = %d exchanges, want 0", len(overflow))
	}
	for _, ex := range recent {
		if ex.Command == "what's in my project notes?" {
			t.Error("knowledge-base exchange leaked into the general history")
		}
	}
}

func TestSelectHistoryTruncatesNeverPads(t *testing.T) {
	recent, overflow := SelectHistory([]minder.Exchange{
		{Command: "give me a quote", Response: "a"},
	})
	if len(recent) != 1 || len(overflow) != 0 {
		t.Errorf("got %d recent / %d overflow, want 1 / 0", len(recent), len(overflow))
	}

	recent, overflow = SelectHistory(nil)
	if len(recent) != 0 || len(overflow) != 0 {
		t.Errorf("got %d recent / %d overflow for empty history", len(recent), len(overflow))
	}
}

func TestSerializeHistoryTruncatesPreviews(t *testing.T) {
	long := strings.Repeat("x", historyPreviewLen+50)
	out := serializeHistory([]minder.Exchange{{Command: "give me a quote", Response: long}})

	if strings.Contains(out, long) {
		t.Error("full response leaked into serialized history")
	}
	if !strings.Contains(out, strings.Repeat("x", historyPreviewLen)+"...") {
		t.Error("truncated preview marker missing")
	}
}

func TestSerializeHistoryEmpty(t *testing.T) {
	out := serializeHistory(nil)
	if !strings.Contains(out, "fresh request") {
		t.Errorf("empty history framing missing: %q", out)
	}
}

func TestTodoUserCarriesResolvedDateVerbatim(t *testing.T) {
	b := &PromptBuilder{}
	resolved := "2025-03-07T00:00:00.000Z"

	user := b.TodoUser("add review code in 3 days", `[]`, resolved)
	if !strings.Contains(user, resolved) {
		t.Errorf("resolved date %q missing from user prompt:\n%s", resolved, user)
	}
	if !strings.Contains(user, "add review code in 3 days") {
		t.Error("command text missing from user prompt")
	}
	if !strings.Contains(user, "[]") {
		t.Error("todos payload missing from user prompt")
	}
}

func TestTodoSystemRendersDefaultTemplate(t *testing.T) {
	b := &PromptBuilder{}

	withDate := b.TodoSystem("2025-03-07T00:00:00.000Z")
	if !strings.Contains(withDate, "2025-03-07T00:00:00.000Z") {
		t.Error("resolved date missing from system prompt")
	}

	withoutDate := b.TodoSystem("")
	if strings.Contains(withoutDate, "2025-03-07") {
		t.Error("stale date in dateless system prompt")
	}
	if withoutDate == "" {
		t.Error("system prompt rendered empty")
	}
}

func TestQuerySystemEmbedsCurrentDate(t *testing.T) {
	b := &PromptBuilder{}
	now := time.Date(2025, time.March, 4, 10, 0, 0, 0, time.UTC)

	system := b.QuerySystem(now, "")
	for _, want := range []string{"2025-03-04", "Tuesday", "March"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

// A broken custom template must not take the daemon down: rendering falls
// back to the embedded default.
func TestRenderPromptFallsBackOnBadTemplate(t *testing.T) {
	b := &PromptBuilder{todoPrompt: "{{.Broken"}

	out := b.TodoSystem("")
	if out == "" {
		t.Fatal("fallback produced an empty prompt")
	}
	if strings.Contains(out, "{{") {
		t.Error("unparsed template text leaked into the prompt")
	}
}
