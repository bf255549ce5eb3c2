// Package awstools executes AWS operations on behalf of a chat user. Every
// operation returns a domain.Result and never a Go error: provider failures are
// translated into user-facing messages.
package awstools

import (
	"log/slog"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"

	"cloudpilot/internal/domain"
)

const bytesPerMB = 1024 * 1024

// Executor runs AWS operations with per-request credentials.
type Executor struct {
	clients       ClientFactory
	base          aws.Config
	defaultRegion string
	codeDir       string
}

type Option func(*Executor)

// WithClientFactory replaces the SDK client constructors.
func WithClientFactory(f ClientFactory) Option {
	return func(e *Executor) {
		if f != nil {
			e.clients = f
		}
	}
}

// WithBaseConfig sets the configuration every per-call session is derived from.
func WithBaseConfig(cfg aws.Config) Option {
	return func(e *Executor) {
		e.base = cfg
	}
}

// WithDefaultRegion sets the region used when credentials omit one.
func WithDefaultRegion(region string) Option {
	return func(e *Executor) {
		e.defaultRegion = strings.TrimSpace(region)
	}
}

// WithFunctionCodeDir sets the directory Lambda deployment packages are read from.
func WithFunctionCodeDir(dir string) Option {
	return func(e *Executor) {
		e.codeDir = strings.TrimSpace(dir)
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{
		clients:       sdkClients{},
		defaultRegion: domain.DefaultRegion,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Session returns the per-call configuration for creds.
func (e *Executor) Session(creds domain.Credentials) aws.Config {
	return Session(e.base, creds.WithDefaultRegion(e.defaultRegion))
}

func fail[T any](op domain.Operation, err error, text failureText) domain.Result[T] {
	res := translate[T](err, text)
	code, _ := ErrorCode(err)
	slog.Warn("aws operation failed", "operation", op.String(), "status", res.Status.String(), "code", code, "err", err)
	return res
}

func toMB(n int64) float64 {
	return math.Round(float64(n)/bytesPerMB*100) / 100
}

func valueOr(s *string, def string) string {
	if v := aws.ToString(s); v != "" {
		return v
	}
	return def
}
