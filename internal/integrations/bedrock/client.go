// Package bedrock invokes text-completion models on Amazon Bedrock.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

const (
	DefaultModelID   = "anthropic.claude-v2"
	DefaultMaxTokens = 2048
)

// RuntimeAPI is the subset of *bedrockruntime.Client used here.
type RuntimeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

var _ RuntimeAPI = (*bedrockruntime.Client)(nil)

// completionRequest is the text-completion envelope accepted by Claude v2 models.
type completionRequest struct {
	Prompt            string  `json:"prompt"`
	MaxTokensToSample int     `json:"max_tokens_to_sample"`
	Temperature       float64 `json:"temperature"`
	TopP              float64 `json:"top_p"`
}

type completionResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
}

// Kind classifies invocation failures.
type Kind string

const (
	KindAccessDenied      Kind = "access_denied"
	KindValidation        Kind = "validation"
	KindThrottled         Kind = "throttled"
	KindProvider          Kind = "provider"
	KindConnection        Kind = "connection"
	KindEmptyCompletion   Kind = "empty_completion"
	KindMalformedResponse Kind = "malformed_response"
)

// Error is returned by Complete for every failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindAccessDenied:
		return "bedrock: access denied to AWS Bedrock, check your IAM permissions"
	case KindValidation:
		return fmt.Sprintf("bedrock: invalid request: %v", e.Err)
	case KindThrottled:
		return "bedrock: request was throttled, try again later"
	case KindConnection:
		return fmt.Sprintf("bedrock: connection error: %v", e.Err)
	case KindEmptyCompletion:
		return "bedrock: empty response from model"
	case KindMalformedResponse:
		return fmt.Sprintf("bedrock: failed to parse model response: %v", e.Err)
	}
	return fmt.Sprintf("bedrock: %v", e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Client sends single-shot prompts to a Bedrock model. A runtime client is
// built per call from the caller's configuration.
type Client struct {
	modelID    string
	maxTokens  int
	newRuntime func(cfg aws.Config) RuntimeAPI
}

type Option func(*Client)

func WithModelID(id string) Option {
	return func(c *Client) {
		if id = strings.TrimSpace(id); id != "" {
			c.modelID = id
		}
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithRuntimeFactory replaces the bedrockruntime client constructor.
func WithRuntimeFactory(f func(cfg aws.Config) RuntimeAPI) Option {
	return func(c *Client) {
		if f != nil {
			c.newRuntime = f
		}
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		modelID:   DefaultModelID,
		maxTokens: DefaultMaxTokens,
		newRuntime: func(cfg aws.Config) RuntimeAPI {
			return bedrockruntime.NewFromConfig(cfg)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ModelID() string { return c.modelID }

// Complete sends prompt to the model and returns the completion text.
func (c *Client) Complete(ctx context.Context, cfg aws.Config, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:            "\n\nHuman: " + prompt + "\n\nAssistant:",
		MaxTokensToSample: c.maxTokens,
		Temperature:       0,
		TopP:              0.9,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: marshal request: %w", err)
	}

	out, err := c.newRuntime(cfg).InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", classify(err)
	}

	var resp completionResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", &Error{Kind: KindMalformedResponse, Err: err}
	}
	completion := strings.TrimSpace(resp.Completion)
	if completion == "" {
		return "", &Error{Kind: KindEmptyCompletion}
	}
	return completion, nil
}

func classify(err error) *Error {
	var (
		denied    *types.AccessDeniedException
		invalid   *types.ValidationException
		throttled *types.ThrottlingException
		apiErr    smithy.APIError
	)
	switch {
	case errors.As(err, &denied):
		return &Error{Kind: KindAccessDenied, Err: err}
	case errors.As(err, &invalid):
		return &Error{Kind: KindValidation, Err: err}
	case errors.As(err, &throttled):
		return &Error{Kind: KindThrottled, Err: err}
	case errors.As(err, &apiErr):
		return &Error{Kind: KindProvider, Err: err}
	}
	return &Error{Kind: KindConnection, Err: err}
}
