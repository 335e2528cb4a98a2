package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const contextCacheTTL = 10 * time.Minute

// folderRecord mirrors the client's folder shape. Unknown fields are dropped.
type folderRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Color   string `json:"color"`
	IconKey string `json:"iconKey"`
}

// noteRecord mirrors the client's note shape.
type noteRecord struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	FolderID  string   `json:"folderId"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"createdAt"`
	UpdatedAt string   `json:"updatedAt"`
}

// contentBlock is one block of a structured note body.
type contentBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// ContextCache is a TTL cache of rendered knowledge-base summaries keyed by a
// hash of the serialized notes and folders. Rendering walks every note and
// runs the extraction regexes, so repeated queries against an unchanged
// knowledge base skip that work.
type ContextCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewContextCache creates a ContextCache with TTL-based expiration.
func NewContextCache() *ContextCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](contextCacheTTL),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &ContextCache{cache: c}
}

// Close stops the cache expiration loop.
func (cc *ContextCache) Close() {
	cc.cache.Stop()
}

// Summary returns the knowledge-base context for the given payloads, rendering
// and caching it on first sight.
func (cc *ContextCache) Summary(notesJSON, foldersJSON string) string {
	h := sha256.Sum256([]byte(notesJSON + "\x00" + foldersJSON))
	key := fmt.Sprintf("%x", h)

	if item := cc.cache.Get(key); item != nil {
		return item.Value()
	}

	summary := buildNotesSummary(notesJSON, foldersJSON)
	cc.cache.Set(key, summary, ttlcache.DefaultTTL)
	return summary
}

// buildNotesSummary renders folders and notes into the prompt context block.
// Unparseable payloads are logged and treated as empty rather than failing
// the command.
func buildNotesSummary(notesJSON, foldersJSON string) string {
	var notes []noteRecord
	var folders []folderRecord

	if notesJSON != "" {
		if err := json.Unmarshal([]byte(notesJSON), &notes); err != nil {
			slog.Warn("failed to parse notes payload", "error", err)
		}
	}
	if foldersJSON != "" {
		if err := json.Unmarshal([]byte(foldersJSON), &folders); err != nil {
			slog.Warn("failed to parse folders payload", "error", err)
		}
	}

	folderNames := make(map[string]string, len(folders))
	for _, f := range folders {
		folderNames[f.ID] = f.Name
	}

	var sb strings.Builder
	sb.WriteString("## User's Knowledge Base Context\n\n")

	fmt.Fprintf(&sb, "### Folders (%d):\n", len(folders))
	if len(folders) == 0 {
		sb.WriteString("No folders found.\n")
	}
	for _, f := range folders {
		fmt.Fprintf(&sb, "- **%s** (ID: %s)", f.Name, f.ID)
		if f.Color != "" {
			fmt.Fprintf(&sb, " - Color: %s", f.Color)
		}
		if f.IconKey != "" {
			fmt.Fprintf(&sb, " - Icon: %s", f.IconKey)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "\n### Notes (%d):\n", len(notes))
	if len(notes) == 0 {
		sb.WriteString("No notes found.\n")
	}
	for i, n := range notes {
		if i > 0 {
			sb.WriteString("\n---\n\n")
		}
		folderName := folderNames[n.FolderID]
		if folderName == "" {
			folderName = "Uncategorized"
		}

		title := n.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "- **%s** (ID: %s)\n", title, n.ID)

		fmt.Fprintf(&sb, "  - Folder: %s", folderName)
		if len(n.Tags) > 0 {
			fmt.Fprintf(&sb, " [Tags: %s]", strings.Join(n.Tags, ", "))
		}
		sb.WriteString("\n")

		content := flattenContent(n.Content)
		if extracted := extractStructuredInfo(content); extracted != "" {
			sb.WriteString(extracted)
		}

		sb.WriteString("  - Full Content (READ COMPLETELY - ALL TEXT BELOW IS IMPORTANT):\n")
		sb.WriteString(content)
		sb.WriteString("\n  - [END OF CONTENT FOR THIS NOTE]\n")

		updated := n.UpdatedAt
		if updated == "" {
			updated = n.CreatedAt
		}
		fmt.Fprintf(&sb, "  - Updated: %s\n", updated)
	}

	return sb.String()
}

// flattenContent folds a block-structured note body into plain text. Bodies
// that are not block arrays pass through unchanged.
func flattenContent(content string) string {
	if content == "" {
		return "(empty)"
	}

	var blocks []contentBlock
	if err := json.Unmarshal([]byte(content), &blocks); err != nil {
		return content
	}

	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Content != "" {
				parts = append(parts, b.Content)
			}
		case "link":
			if b.Content != "" {
				parts = append(parts, b.Content)
			} else if b.URL != "" {
				parts = append(parts, b.URL)
			}
		}
	}
	if len(parts) == 0 {
		return content
	}
	return strings.Join(parts, " ")
}

var (
	rePhases  = regexp.MustCompile(`(?i)Phase\s+(\d+)\s*-\s*([^(]+)\s*\(([^)]+)\)`)
	reTeam    = regexp.MustCompile(`(?i)Team\s+size:\s*([^.]+)`)
	reBudget  = regexp.MustCompile(`(?i)Budget:\s*(\$[\d,]+[^.]*)`)
	reMetrics = regexp.MustCompile(`(?i)Success\s+metrics?:\s*([^.]+)`)
)

// extractStructuredInfo pulls project phases, team composition, budget, and
// success metrics out of note text so the model cannot overlook them.
func extractStructuredInfo(content string) string {
	var info []string

	if phases := rePhases.FindAllStringSubmatch(content, -1); len(phases) > 0 {
		info = append(info, fmt.Sprintf("**EXTRACTED PHASES (%d total):**", len(phases)))
		for _, m := range phases {
			info = append(info, fmt.Sprintf("  - Phase %s: %s (%s)", m[1], strings.TrimSpace(m[2]), strings.TrimSpace(m[3])))
		}
	}

	if m := reTeam.FindStringSubmatch(content); m != nil {
		info = append(info, "**EXTRACTED TEAM COMPOSITION:**", "  - "+strings.TrimSpace(m[1]))
	}

	if m := reBudget.FindStringSubmatch(content); m != nil {
		info = append(info, "**EXTRACTED BUDGET:**", "  - "+strings.TrimSpace(m[1]))
	}

	if m := reMetrics.FindStringSubmatch(content); m != nil {
		info = append(info, "**EXTRACTED SUCCESS METRICS:**", "  - "+strings.TrimSpace(m[1]))
	}

	if len(info) == 0 {
		return ""
	}
	return "\n" + strings.Join(info, "\n") + "\n"
}
