package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/advisorworks/advisor-copilot/internal/infrastructure/resilience"
)

// Input guard for the embedding endpoint, roughly 8000 tokens at 4 chars
// per token.
const maxEmbedChars = 32000

type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
}

func New(apiKey, chatModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		api:        openai.NewClient(option.WithAPIKey(apiKey)),
		chatModel:  chatModel,
		embedModel: embedModel,
		executor:   executor,
	}
}

// Embedder implements ports.Embedder on top of the OpenAI embeddings API.
// Batches are paced to respect provider rate limits and responses are
// reassembled by provider-reported index, so output order always matches
// input order.
type Embedder struct {
	client    *Client
	batchSize int
	limiter   *rate.Limiter
}

func NewEmbedder(client *Client, batchSize int) *Embedder {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Embedder{
		client:    client,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed batch pacing: %w", err)
		}

		batch := make([]string, 0, end-start)
		for _, text := range texts[start:end] {
			batch = append(batch, cleanEmbedText(text))
		}

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var response *openai.CreateEmbeddingResponse

	call := func(callCtx context.Context) error {
		resp, err := e.client.api.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(e.client.embedModel),
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
		})
		if err != nil {
			return fmt.Errorf("openai embeddings: %w", err)
		}
		response = resp
		return nil
	}

	var err error
	if e.client.executor != nil {
		err = e.client.executor.Execute(ctx, "openai.embed", call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}

	return orderEmbeddings(response.Data, len(batch))
}

// orderEmbeddings places each returned vector at its provider-reported index,
// regardless of response order.
func orderEmbeddings(data []openai.Embedding, want int) ([][]float32, error) {
	if len(data) != want {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(data), want)
	}

	out := make([][]float32, want)
	for _, item := range data {
		idx := int(item.Index)
		if idx < 0 || idx >= want {
			return nil, fmt.Errorf("embedding index %d out of range [0,%d)", idx, want)
		}
		if out[idx] != nil {
			return nil, fmt.Errorf("duplicate embedding index %d", idx)
		}
		vector := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vector[i] = float32(v)
		}
		out[idx] = vector
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func cleanEmbedText(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}
	return text
}

// Chat implements ports.ChatModel.
type Chat struct {
	client *Client
}

func NewChat(client *Client) *Chat {
	return &Chat{client: client}
}

func (c *Chat) Chat(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	var text string

	call := func(callCtx context.Context) error {
		completion, err := c.client.api.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(c.client.chatModel),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage(user),
			},
			MaxTokens:   openai.Int(int64(maxTokens)),
			Temperature: openai.Float(temperature),
		})
		if err != nil {
			return fmt.Errorf("openai chat completion: %w", err)
		}
		if len(completion.Choices) == 0 {
			return fmt.Errorf("openai chat completion: empty choices")
		}
		text = strings.TrimSpace(completion.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.client.executor != nil {
		err = c.client.executor.Execute(ctx, "openai.chat", call, classifyProviderError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded("chat", err)
	}
	return text, nil
}

func (c *Chat) ModelName() string {
	return c.client.chatModel
}
