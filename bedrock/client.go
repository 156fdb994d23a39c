package bedrock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicbedrock "github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/oxhq/testgap/core"
)

const (
	DefaultRegion    = "us-east-1"
	DefaultModelID   = "anthropic.claude-3-sonnet-20240229-v1:0"
	DefaultMaxTokens = 4000
	DefaultTimeout   = 30 * time.Second
)

// ModelClient sends one prompt to a text-generation model and returns the
// reply text
type ModelClient interface {
	InvokeModel(ctx context.Context, prompt string) (string, error)
}

// Config describes the remote model. Credentials come from the AWS default
// chain of the process running the client.
type Config struct {
	Region    string
	ModelID   string
	MaxTokens int
	Timeout   time.Duration
	Endpoint  string // overrides the regional bedrock-runtime URL
}

// DefaultConfig returns the fixed model settings
func DefaultConfig() Config {
	return Config{
		Region:    DefaultRegion,
		ModelID:   DefaultModelID,
		MaxTokens: DefaultMaxTokens,
		Timeout:   DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.ModelID == "" {
		c.ModelID = d.ModelID
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// Client invokes an Anthropic model hosted on Amazon Bedrock
type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int
	timeout   time.Duration
}

// NewClient loads AWS configuration for cfg.Region and builds a client.
// The SDK retry loop is disabled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, &core.ServiceError{Kind: core.ServiceAuth, Err: fmt.Errorf("load aws config: %w", err)}
	}

	opts := []option.RequestOption{
		anthropicbedrock.WithConfig(awsCfg),
		option.WithMaxRetries(0),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &Client{
		client:    anthropic.NewClient(opts...),
		model:     cfg.ModelID,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
	}, nil
}

// Model returns the model identifier
func (c *Client) Model() string {
	return c.model
}

// InvokeModel sends prompt as a single user message and returns the first
// text block of the reply
func (c *Client) InvokeModel(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", classifyError(err)
	}

	slog.DebugContext(ctx, "bedrock invoke completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	return firstText(resp)
}

func firstText(resp *anthropic.Message) (string, error) {
	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", &core.ServiceError{
		Kind: core.ServiceUnavailable,
		Err:  errors.New("model reply has no text content"),
	}
}

// classifyError maps SDK and transport failures onto service error kinds
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch code := apiErr.StatusCode; {
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return &core.ServiceError{Kind: core.ServiceAuth, Err: err}
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return &core.ServiceError{Kind: core.ServiceUnavailable, Err: err}
		case code >= http.StatusBadRequest:
			return &core.ServiceError{Kind: core.ServiceMalformedRequest, Err: err}
		}
	}
	return &core.ServiceError{Kind: core.ServiceUnavailable, Err: err}
}
