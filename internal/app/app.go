// Package app wires configuration, clients and services into the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"cloudpilot/internal/awstools"
	"cloudpilot/internal/config"
	"cloudpilot/internal/httpapi"
	"cloudpilot/internal/integrations/bedrock"
	"cloudpilot/internal/integrations/openai"
	"cloudpilot/internal/integrations/paramstore"
	"cloudpilot/internal/usecase"
)

// New loads the default AWS configuration and builds the API from cfg.
func New(ctx context.Context, cfg *config.Config) (http.Handler, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}

	// The reviewer falls back to the process credentials only when they resolve.
	fallback := false
	if awsCfg.Credentials != nil {
		if _, err := awsCfg.Credentials.Retrieve(ctx); err != nil {
			slog.Info("no default AWS credentials, reviewer requires request credentials", "err", err)
		} else {
			fallback = true
		}
	}
	return Build(cfg, awsCfg, fallback)
}

// Build constructs the API from cfg and an already loaded AWS configuration.
// When fallback is set, awsCfg also serves reviewer requests that carry no
// credentials.
func Build(cfg *config.Config, awsCfg aws.Config, fallback bool) (http.Handler, error) {
	keys, err := openAIKeys(cfg.OpenAI, awsCfg)
	if err != nil {
		return nil, err
	}
	llm, err := openai.NewClient(keys, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}

	executor := awstools.New(
		awstools.WithBaseConfig(awsCfg),
		awstools.WithDefaultRegion(cfg.Region),
		awstools.WithFunctionCodeDir(cfg.FunctionCodeDir),
	)
	model := bedrock.New(
		bedrock.WithModelID(cfg.Bedrock.ModelID),
		bedrock.WithMaxTokens(cfg.Bedrock.MaxTokens),
	)

	var reviewOpts []usecase.ReviewOption
	if fallback {
		reviewOpts = append(reviewOpts, usecase.WithFallbackConfig(awsCfg))
	}
	review, err := usecase.NewReviewService(model, executor, reviewOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create review service: %w", err)
	}

	chat, err := usecase.NewChatService(llm, executor, review, cfg.OpenAI.Model,
		usecase.WithModeration(cfg.OpenAI.Moderation))
	if err != nil {
		return nil, fmt.Errorf("app: create chat service: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Chat:           chat,
		Review:         review,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("app: create router: %w", err)
	}

	slog.Info("cloudpilot configured",
		"openai_model", cfg.OpenAI.Model,
		"bedrock_model", model.ModelID(),
		"region", cfg.Region,
		"moderation", cfg.OpenAI.Moderation,
		"reviewer_fallback", fallback,
	)
	return router, nil
}

// openAIKeys prefers an explicit key and otherwise reads the token from
// Parameter Store on first use.
func openAIKeys(cfg config.OpenAIConfig, awsCfg aws.Config) (openai.KeySource, error) {
	if cfg.APIKey != "" {
		return openai.StaticKey(cfg.APIKey), nil
	}
	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	src, err := paramstore.NewTokenSource(params, cfg.TokenParameter())
	if err != nil {
		return nil, fmt.Errorf("app: create token source: %w", err)
	}
	return src, nil
}
