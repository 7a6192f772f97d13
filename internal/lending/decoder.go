package lending

import (
	"context"

	"go.uber.org/zap"

	"lendingScope/internal/chain"
	"lendingScope/internal/config"
	"lendingScope/internal/model"
)

// Decoder defines a log decoder.
type Decoder interface {
	CanDecode(topic0 string) bool
	Decode(log model.LogRecord, ctx DecodeContext) (*model.TypedEvent, error)
}

// DecodeContext provides shared dependencies for decoders. With a nil Chain
// or SkipCalls set, events are decoded without contract reads.
type DecodeContext struct {
	Context        context.Context
	Chain          chain.Reader
	Deployment     config.Deployment
	TokenMetaCache *TokenMetaCache
	Logger         *zap.Logger
	SkipCalls      bool
}

func (c DecodeContext) context() context.Context {
	if c.Context == nil {
		return context.Background()
	}
	return c.Context
}

func (c DecodeContext) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
