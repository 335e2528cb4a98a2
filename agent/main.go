// Package agent orchestrates intent classification, date resolution, prompt
// assembly, and model invocation for natural-language todo and query commands.
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	minder "github.com/hollowlog/minder"
	"github.com/hollowlog/minder/index"
)

// DefaultCommandTimeout bounds a model invocation when the config does not.
const DefaultCommandTimeout = 60 * time.Second

// Engine processes one command at a time: classify, resolve dates, build the
// prompt, invoke the gateway, validate the output.
type Engine struct {
	config     *minder.Config
	gateway    Gateway
	prompts    *PromptBuilder
	context    *ContextCache
	timeout    time.Duration
	maxRelated int
	now        func() time.Time
}

// NewEngine creates an engine from the on-disk configuration.
func NewEngine() *Engine {
	cfg, err := minder.LoadConfig()
	if err != nil {
		slog.Warn("failed to load config, using defaults", "error", err)
		cfg = minder.DefaultConfig()
	}

	var gw Gateway
	switch minder.ResolveGatewayAPIType(cfg) {
	case "chat_completions":
		gw = NewChatGateway(minder.ResolveGatewayBaseURL(cfg))
	default:
		gw = NewGeminiGateway(minder.ResolveEmbeddingModel(cfg))
	}

	return newEngine(cfg, gw)
}

func newEngine(cfg *minder.Config, gw Gateway) *Engine {
	timeout := time.Duration(cfg.Server.CommandTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &Engine{
		config:     cfg,
		gateway:    gw,
		prompts:    NewPromptBuilder(),
		context:    NewContextCache(),
		timeout:    timeout,
		maxRelated: cfg.Embedding.MaxRelated,
		now:        time.Now,
	}
}

// Close releases resources held by the engine.
func (e *Engine) Close() {
	if e.gateway != nil {
		e.gateway.Close()
	}
	if e.context != nil {
		e.context.Close()
	}
}

// Handle processes a single command and always returns a response. The
// resolved date is computed exactly once here; the prompt and any emitted
// operation carry that string untouched.
func (e *Engine) Handle(ctx context.Context, cmd *minder.Command) *minder.Response {
	if code, msg := validateEnvelope(cmd); code != "" {
		return e.fail(cmd, "", code, msg)
	}

	intent := Classify(cmd.Text, cmd.OperationHint, cmd.ExistingTodosJSON != "")
	resolved, _ := ResolveRelativeDate(cmd.Text, e.now())

	var system, user string
	if intent == IntentTodoMutation {
		system = e.prompts.TodoSystem(resolved)
		user = e.prompts.TodoUser(cmd.Text, cmd.ExistingTodosJSON, resolved)
	} else {
		history := e.selectHistory(ctx, cmd)
		summary := e.context.Summary(cmd.NotesJSON, cmd.FoldersJSON)
		system = e.prompts.QuerySystem(e.now(), resolved)
		user = e.prompts.QueryUser(cmd.Text, history, summary)
	}

	slog.Debug("prompt", "intent", intent.String(), "system", system, "user", user)

	invokeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.gateway.Invoke(invokeCtx, &Invocation{
		Credentials: cmd.Credentials,
		Model:       cmd.ModelID,
		System:      system,
		User:        user,
		Config:      *cmd.GenerationConfig,
	})
	if err != nil {
		slog.Error("model invocation error", "error", err)
		return e.fail(cmd, intent.String(), minder.ErrModelInvocationFailed, err.Error())
	}

	if intent == IntentTodoMutation {
		return e.todoResponse(cmd, raw)
	}
	return e.queryResponse(cmd, raw)
}

// validateEnvelope checks the required command fields. Returns an empty code
// when the envelope is acceptable.
func validateEnvelope(cmd *minder.Command) (code, msg string) {
	switch {
	case cmd.Text == "":
		return minder.ErrInvalidConfiguration, "text is required"
	case cmd.Credentials == "":
		return minder.ErrInvalidConfiguration, "credentials are required"
	case cmd.ModelID == "":
		return minder.ErrInvalidConfiguration, "modelId is required"
	case cmd.GenerationConfig == nil:
		return minder.ErrInvalidConfiguration, "generationConfig is required"
	}
	return "", ""
}

// selectHistory builds the avoid-repetition exchange list for a query prompt.
// The deterministic recent window always applies; when an embedding backend
// is configured, older general exchanges similar to the command are appended.
func (e *Engine) selectHistory(ctx context.Context, cmd *minder.Command) []minder.Exchange {
	recent, overflow := SelectHistory(cmd.ConversationHistory)
	if len(overflow) == 0 || !minder.EmbeddingEnabled(e.config) {
		return recent
	}

	emb, ok := e.gateway.(Embedder)
	if !ok {
		return recent
	}

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		return emb.EmbedBatch(ctx, cmd.Credentials, texts)
	}

	related, err := index.Related(ctx, embed, cmd.Text, overflow, e.maxRelated)
	if err != nil {
		slog.Warn("related exchange selection failed", "error", err)
		return recent
	}
	return append(recent, related...)
}

func (e *Engine) todoResponse(cmd *minder.Command, raw string) *minder.Response {
	op, verr := ParseOperation(raw)
	if verr != nil {
		slog.Error("failed to parse model output", "error", verr, "raw", raw)
		return e.fail(cmd, "todo", minder.ErrMalformedModelOutput, verr.Error())
	}

	resp := &minder.Response{
		Success:       true,
		Kind:          "todo",
		CorrelationID: cmd.CorrelationID,
		Command:       op.StorageCommand,
		Operation:     op,
	}

	// Echo the todo list back on list operations, silently skipping an
	// unparseable payload.
	if op.Kind == minder.OpList && cmd.ExistingTodosJSON != "" {
		if json.Valid([]byte(cmd.ExistingTodosJSON)) {
			resp.Todos = json.RawMessage(cmd.ExistingTodosJSON)
		}
	}

	return resp
}

func (e *Engine) queryResponse(cmd *minder.Command, raw string) *minder.Response {
	answer, verr := ParseAnswer(raw)
	if verr != nil {
		return e.fail(cmd, "query", minder.ErrEmptyResponse, "model returned an empty answer")
	}

	return &minder.Response{
		Success:       true,
		Kind:          "query",
		CorrelationID: cmd.CorrelationID,
		Answer:        answer,
	}
}

func (e *Engine) fail(cmd *minder.Command, kind, code, msg string) *minder.Response {
	return &minder.Response{
		Kind:          kind,
		CorrelationID: cmd.CorrelationID,
		Error:         &minder.Error{Code: code, Message: msg},
	}
}
