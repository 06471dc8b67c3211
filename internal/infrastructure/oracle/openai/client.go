// Package openai backs the extraction oracle with the OpenAI chat
// completions API.
package openai

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"questmine/internal/core/domain"
	"questmine/internal/infrastructure/resilience"
)

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	api      chatCompleter
	model    string
	timeout  time.Duration
	executor *resilience.Executor
}

type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func New(cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.WrapError(domain.ErrOracleUnavailable, "oracle configure", errMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:      openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		executor: executor,
	}, nil
}

// Complete sends one prompt and returns the raw model text. The caller
// owns fence stripping and JSON parsing.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.1,
	}

	var content string
	call := func(callCtx context.Context) error {
		response, err := c.api.CreateChatCompletion(callCtx, request)
		if err != nil {
			return err
		}
		if len(response.Choices) == 0 {
			return errEmptyCompletion
		}
		content = strings.TrimSpace(response.Choices[0].Message.Content)
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "oracle.complete", call, classifyOracleError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapOracleKind("oracle complete", err)
	}
	return content, nil
}
