package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/relayos/knowledge-core/internal/core/domain"
	"github.com/relayos/knowledge-core/internal/infrastructure/resilience"
)

const (
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultTimeout        = 60 * time.Second

	maxEmbeddingBatch = 100
)

type Options struct {
	BaseURL            string
	ChatModel          string
	EmbeddingModel     string
	EmbeddingDimension int
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client talks to the OpenAI API. SDK retries are disabled; retries and
// breaking go through the resilience executor instead.
type Client struct {
	api        openai.Client
	chatModel  string
	embedModel string
	dimension  int
	timeout    time.Duration
	executor   *resilience.Executor
}

func New(apiKey string, options Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "openai client", errors.New("api key is not set"))
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if options.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(options.BaseURL))
	}

	c := &Client{
		api:        openai.NewClient(reqOpts...),
		chatModel:  options.ChatModel,
		embedModel: options.EmbeddingModel,
		dimension:  options.EmbeddingDimension,
		timeout:    options.Timeout,
		executor:   options.ResilienceExecutor,
	}
	if c.chatModel == "" {
		c.chatModel = DefaultChatModel
	}
	if c.embedModel == "" {
		c.embedModel = DefaultEmbeddingModel
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// Complete implements ports.Completer.
func (c *Client) Complete(ctx context.Context, messages []domain.ChatMessage, opts domain.CompletionOptions) (domain.Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.chatModel),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(m.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(m.Content))
		}
	}

	var completion *openai.ChatCompletion
	err := c.call(ctx, "chat", func(callCtx context.Context) error {
		var err error
		completion, err = c.api.Chat.Completions.New(callCtx, params)
		return err
	})
	if err != nil {
		return domain.Completion{}, err
	}
	if len(completion.Choices) == 0 {
		return domain.Completion{}, domain.WrapError(domain.ErrExternalService, "openai chat", errors.New("no completion choices returned"))
	}

	choice := completion.Choices[0]
	return domain.Completion{
		Content:      strings.TrimSpace(choice.Message.Content),
		Model:        string(completion.Model),
		TokensUsed:   int(completion.Usage.TotalTokens),
		FinishReason: string(choice.FinishReason),
	}, nil
}

// Embed implements ports.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrExternalService, "openai embed", errors.New("no embeddings generated"))
	}
	return vectors[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > maxEmbeddingBatch {
		return nil, domain.WrapError(domain.ErrInvalidInput, "openai embed", fmt.Errorf("batch size %d exceeds %d", len(texts), maxEmbeddingBatch))
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if c.dimension > 0 {
		params.Dimensions = openai.Int(int64(c.dimension))
	}

	var resp *openai.CreateEmbeddingResponse
	err := c.call(ctx, "embed", func(callCtx context.Context) error {
		var err error
		resp, err = c.api.Embeddings.New(callCtx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		idx := int(data.Index)
		if idx < 0 || idx >= len(out) {
			return nil, domain.WrapError(domain.ErrExternalService, "openai embed", fmt.Errorf("embedding index %d out of range", idx))
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		out[idx] = vector
	}
	return out, nil
}

func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	run := func(callCtx context.Context) error {
		callCtx, cancel := context.WithTimeout(callCtx, c.timeout)
		defer cancel()
		return fn(callCtx)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai."+operation, run, classifyOpenAIError)
	} else {
		err = run(ctx)
	}
	if err == nil {
		return nil
	}
	if class := classifyOpenAIError(err); class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, "openai "+operation, err)
	}
	return domain.WrapError(domain.ErrExternalService, "openai "+operation, err)
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if errors.Is(err, context.DeadlineExceeded) || resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests, apiErr.StatusCode >= 500:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
