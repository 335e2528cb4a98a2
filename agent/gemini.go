package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"google.golang.org/genai"
)

const geminiClientTTL = 1 * time.Hour

// GeminiGateway invokes Gemini models through the GenAI API. Clients are
// cached per credential with a TTL so repeated commands from the same user
// reuse one underlying HTTP client.
type GeminiGateway struct {
	clients        *ttlcache.Cache[string, *genai.Client]
	embeddingModel string
}

// NewGeminiGateway creates a Gemini gateway. embeddingModel may be empty to
// disable the Embedder side.
func NewGeminiGateway(embeddingModel string) *GeminiGateway {
	c := ttlcache.New[string, *genai.Client](
		ttlcache.WithTTL[string, *genai.Client](geminiClientTTL),
		ttlcache.WithDisableTouchOnHit[string, *genai.Client](),
	)
	go c.Start()
	return &GeminiGateway{clients: c, embeddingModel: embeddingModel}
}

// Close stops the client cache expiration loop.
func (g *GeminiGateway) Close() {
	g.clients.Stop()
}

func (g *GeminiGateway) clientFor(ctx context.Context, credentials string) (*genai.Client, error) {
	if item := g.clients.Get(credentials); item != nil {
		return item.Value(), nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  credentials,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	g.clients.Set(credentials, client, ttlcache.DefaultTTL)
	return client, nil
}

// Invoke sends the prompt to the given Gemini model and returns the raw text.
// The system and user parts are joined into a single user content.
func (g *GeminiGateway) Invoke(ctx context.Context, inv *Invocation) (string, error) {
	client, err := g.clientFor(ctx, inv.Credentials)
	if err != nil {
		return "", err
	}

	prompt := inv.User
	if inv.System != "" {
		prompt = inv.System + "\n\n" + inv.User
	}

	cfg := &genai.GenerateContentConfig{}
	if inv.Config.Temperature != 0 {
		cfg.Temperature = genai.Ptr(float32(inv.Config.Temperature))
	}
	if inv.Config.MaxTokens != 0 {
		cfg.MaxOutputTokens = int32(inv.Config.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, inv.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("no text content in response")
	}
	return text, nil
}

// EmbedBatch generates embeddings for multiple texts in a single request.
func (g *GeminiGateway) EmbedBatch(ctx context.Context, credentials string, texts []string) ([][]float32, error) {
	if g.embeddingModel == "" {
		return nil, fmt.Errorf("embedding model not configured")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	client, err := g.clientFor(ctx, credentials)
	if err != nil {
		return nil, err
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := client.Models.EmbedContent(ctx,
		g.embeddingModel,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}

	vectors := make([][]float32, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}
