// Package index selects prior conversation exchanges semantically related to
// an incoming command, using vector embeddings and k-NN search.
package index

import (
	"context"
	"fmt"

	"github.com/coder/hnsw"

	minder "github.com/hollowlog/minder"
)

// EmbedFunc generates embedding vectors for a batch of texts.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Related returns up to topK exchanges from pool whose commands are most
// similar to query. The query and the pool are embedded in one batch and
// searched through a throwaway in-memory graph, so calls share no state.
func Related(ctx context.Context, embed EmbedFunc, query string, pool []minder.Exchange, topK int) ([]minder.Exchange, error) {
	if len(pool) == 0 || topK <= 0 || embed == nil {
		return nil, nil
	}

	texts := make([]string, 0, len(pool)+1)
	texts = append(texts, query)
	for _, ex := range pool {
		texts = append(texts, ex.Command)
	}

	vectors, err := embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}

	graph := hnsw.NewGraph[int]()
	nodes := make([]hnsw.Node[int], len(pool))
	for i := range pool {
		nodes[i] = hnsw.MakeNode(i, vectors[i+1])
	}
	graph.Add(nodes...)

	neighbors := graph.Search(vectors[0], topK)
	related := make([]minder.Exchange, len(neighbors))
	for i, n := range neighbors {
		related[i] = pool[n.Key]
	}
	return related, nil
}
