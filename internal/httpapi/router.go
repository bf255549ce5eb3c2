package httpapi

import (
	"context"
	"errors"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"cloudpilot/internal/domain"
	"cloudpilot/internal/usecase"
)

// ChatUseCase runs one conversation turn. *usecase.ChatService satisfies it.
type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput) (domain.ChatResponse, error)
}

// ReviewUseCase backs the policy endpoints. *usecase.ReviewService satisfies it.
type ReviewUseCase interface {
	ReviewOperation(ctx context.Context, operation map[string]any, creds *domain.Credentials) (domain.Verdict, error)
	SuggestPolicy(ctx context.Context, in usecase.SuggestPolicyInput, creds *domain.Credentials) (domain.PolicySuggestion, error)
}

var (
	_ ChatUseCase   = (*usecase.ChatService)(nil)
	_ ReviewUseCase = (*usecase.ReviewService)(nil)
)

// Dependencies holds everything the router needs.
type Dependencies struct {
	Chat           ChatUseCase
	Review         ReviewUseCase
	AllowedOrigins []string
	// RequestTimeout bounds each request when positive.
	RequestTimeout time.Duration
}

type api struct {
	chat   ChatUseCase
	review ReviewUseCase
}

// NewRouter builds the CloudPilot HTTP API.
func NewRouter(deps Dependencies) (*chi.Mux, error) {
	if deps.Chat == nil {
		return nil, errors.New("httpapi: chat use case must not be nil")
	}
	if deps.Review == nil {
		return nil, errors.New("httpapi: review use case must not be nil")
	}
	a := &api{chat: deps.Chat, review: deps.Review}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(CorrelationID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	if deps.RequestTimeout > 0 {
		r.Use(middleware.Timeout(deps.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", a.handleRoot)
	r.Get("/health", a.handleHealth)
	r.Post("/chat", a.handleChat)
	r.Post("/suggest-iam-policy", a.handleSuggestPolicy)
	r.Post("/validate-aws-operation", a.handleValidateOperation)

	return r, nil
}
