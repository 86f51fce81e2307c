package clog

import (
	"context"
	"maps"
	"sync"
)

// ctxSlog carries attributes that every record logged with the context picks
// up through AttributesHandler.
type ctxSlog struct {
	mu         sync.RWMutex
	attributes map[string]any
}

type ctxSlogKey struct{}

// ContextWithSlog attaches a fresh attribute set to ctx. Nested calls start a
// new set that inherits the parent's attributes.
func ContextWithSlog(ctx context.Context) context.Context {
	attrs := make(map[string]any)
	if parent, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog); ok {
		maps.Copy(attrs, parent.getAttributes())
	}
	return context.WithValue(ctx, ctxSlogKey{}, &ctxSlog{attributes: attrs})
}

func AddAttribute(ctx context.Context, key string, value any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attributes[key] = value
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	maps.Copy(l.attributes, attributes)
}

func GetAttribute[T any](ctx context.Context, key string) T {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return *new(T)
	}
	l.mu.RLock()
	iVal, ok := l.attributes[key]
	l.mu.RUnlock()
	if !ok {
		return *new(T)
	}
	v, ok := iVal.(T)
	if !ok {
		return *new(T)
	}
	return v
}

const (
	ErrorAttributeKey   = "error.message"
	StackAttributeKey   = "error.stack"
	ProjectAttributeKey = "project_id"
)

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

// WithProject returns a context whose log records carry project_id.
func WithProject(ctx context.Context, projectID string) context.Context {
	ctx = ContextWithSlog(ctx)
	AddAttribute(ctx, ProjectAttributeKey, projectID)
	return ctx
}

func (c *ctxSlog) getAttributes() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.attributes)
}

func GetAttributes(ctx context.Context) map[string]any {
	l, ok := ctx.Value(ctxSlogKey{}).(*ctxSlog)
	if !ok {
		return nil
	}
	return l.getAttributes()
}
