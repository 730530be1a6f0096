// Package engine answers investor questions by grounding an LLM on chunks
// retrieved from the document index. Each answer cites the source documents
// the grounding context came from; the model never sees documents the
// retriever did not return.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/fahammohmd/pickme-go/internal/budget"
	"github.com/fahammohmd/pickme-go/internal/logging"
	"github.com/fahammohmd/pickme-go/internal/rag"
)

// ErrEmbedding reports that the question could not be embedded for
// retrieval. The underlying collaborator error is attached via wrapping.
var ErrEmbedding = errors.New("engine: question embedding failed")

// ErrRetrieval reports that the vector search itself failed after the
// question was embedded successfully.
var ErrRetrieval = errors.New("engine: context retrieval failed")

// ErrAnswerGeneration reports that the LLM backend failed to produce an
// answer. The engine surfaces this instead of returning a fabricated or
// empty response.
var ErrAnswerGeneration = errors.New("engine: answer generation failed")

// systemPrompt establishes the assistant persona and the grounding contract:
// the model answers from the supplied context only and says so when the
// context has nothing relevant.
const systemPrompt = `You are the PickMe investor assistant. You answer questions from
prospective and current investors about the company using ONLY the document
excerpts provided in the context block of this conversation.

Rules you must follow on every answer:
- Ground every claim in the provided excerpts. Do not use outside knowledge
  about the company, its market, or its financials.
- If the context block is empty or contains nothing relevant to the question,
  say plainly that you could not find anything relevant in the company
  documents — do not guess or improvise an answer.
- Quote figures (revenue, valuation, dates, percentages) exactly as they
  appear in the excerpts.
- Be concise and direct. Investors are reading quickly.
- If the question is ambiguous, answer the most likely interpretation and
  note the ambiguity in one sentence.`

// Source identifies one retrieved chunk that grounded an answer.
type Source struct {
	// Path is the source document path relative to the documents root.
	Path string `json:"path"`
	// Ordinal is the chunk's position within the source document.
	Ordinal int `json:"ordinal"`
	// Distance is the vector distance between the question and the chunk
	// (smaller is more relevant).
	Distance float32 `json:"distance"`
}

// Answer is the result of one Ask call.
type Answer struct {
	// Text is the model's answer.
	Text string `json:"answer"`
	// Sources lists the retrieved chunks the answer was grounded on,
	// nearest first. Empty when retrieval found nothing relevant.
	Sources []Source `json:"sources"`
}

// Config holds the dependencies required to construct an Engine.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Retriever embeds questions and queries the vector index.
	Retriever rag.Retriever

	// TopK controls how many chunks are retrieved per question.
	// Defaults to 5 if zero.
	TopK int

	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + context block + history + question). History
	// is trimmed oldest-first to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Engine answers questions against the indexed document corpus.
type Engine struct {
	chatModel        model.BaseChatModel
	retriever        rag.Retriever
	topK             int
	maxContextTokens int
}

// New constructs an Engine from the provided Config.
func New(cfg *Config) (*Engine, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("engine: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("engine: Retriever must not be nil")
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Engine{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask answers one question within a conversation. It retrieves grounding
// context for the question, sends the assembled prompt to the LLM, appends
// the completed turn to conv, and returns the answer with its sources.
//
// Retrieval returning zero chunks is not an error: the model is shown an
// explicitly empty context block and the system prompt makes it say it found
// nothing relevant. Collaborator failures surface as ErrEmbedding,
// ErrRetrieval, or ErrAnswerGeneration; the conversation is only appended to
// on success.
func (e *Engine) Ask(ctx context.Context, conv *Conversation, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("engine: question must not be empty")
	}

	results, err := e.retriever.Retrieve(ctx, question, e.topK)
	if err != nil {
		if errors.Is(err, rag.ErrQueryEmbedding) {
			return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}
	if len(results) == 0 {
		logging.Component(ctx, "engine").Debug("retrieval returned no chunks, answering with empty context")
	}

	messages := e.buildMessages(ctx, conv, question, results)

	resp, err := e.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnswerGeneration, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, fmt.Errorf("%w: model returned an empty response", ErrAnswerGeneration)
	}

	answer := &Answer{
		Text:    resp.Content,
		Sources: sourcesFrom(results),
	}

	if conv != nil {
		conv.appendTurn(question, answer.Text)
	}
	return answer, nil
}

// buildMessages assembles the LLM input: system prompt, grounding context,
// trimmed prior turns, then the current question.
func (e *Engine) buildMessages(ctx context.Context, conv *Conversation, question string, results []rag.SearchResult) []*schema.Message {
	system := schema.SystemMessage(systemPrompt)
	contextMsg := schema.SystemMessage(buildGroundingContext(results))
	user := schema.UserMessage(question)

	var history []*schema.Message
	if conv != nil {
		history = conv.Messages()
	}

	// Trim history oldest-first so the total estimated token count fits
	// within the configured context budget. The system prompt, context
	// block, and current question are never trimmed.
	fixed := []*schema.Message{system, contextMsg, user}
	before := len(history)
	history = budget.TrimHistory(fixed, history, e.maxContextTokens)
	if dropped := before - len(history); dropped > 0 {
		logging.FromContext(ctx).Warn("dropped history messages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(history)),
			slog.Int("max_tokens", e.maxContextTokens),
		)
	}

	messages := make([]*schema.Message, 0, 3+len(history))
	messages = append(messages, system)
	messages = append(messages, history...)
	messages = append(messages, contextMsg, user)
	return messages
}

// buildGroundingContext formats retrieved chunks into the context block the
// model answers from, nearest first. Zero results produce an explicitly
// empty block rather than omitting the block entirely.
func buildGroundingContext(results []rag.SearchResult) string {
	if len(results) == 0 {
		return "## Document Context\n\n(no relevant excerpts were found in the company documents)"
	}

	var sb strings.Builder
	sb.WriteString("## Document Context\n\n")
	sb.WriteString("The following excerpts from the company documents are relevant to the question, most relevant first.\n\n")
	for i, r := range results {
		fmt.Fprintf(&sb, "### Excerpt %d — %s\n%s\n\n", i+1, r.Chunk.SourcePath, r.Chunk.Text)
	}
	return sb.String()
}

// sourcesFrom converts search results into answer sources, preserving the
// nearest-first ordering.
func sourcesFrom(results []rag.SearchResult) []Source {
	if len(results) == 0 {
		return nil
	}
	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{
			Path:     r.Chunk.SourcePath,
			Ordinal:  r.Chunk.Ordinal,
			Distance: r.Distance,
		}
	}
	return sources
}
