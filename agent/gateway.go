package agent

import (
	"context"

	minder "github.com/hollowlog/minder"
)

// Invocation is one model call. Credentials and model always come from the
// client's command envelope, never from server configuration.
type Invocation struct {
	Credentials string
	Model       string
	System      string
	User        string
	Config      minder.GenerationConfig
}

// Gateway invokes an external language model and returns its raw text output.
type Gateway interface {
	Invoke(ctx context.Context, inv *Invocation) (string, error)
	Close()
}

// Embedder generates embedding vectors with per-request credentials. A
// Gateway that also implements Embedder enables related-exchange selection.
type Embedder interface {
	EmbedBatch(ctx context.Context, credentials string, texts []string) ([][]float32, error)
}
