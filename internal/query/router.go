package query

import (
	"context"
	"fmt"
	"strings"
)

// Router dispatches to an engine by the upload's file extension.
type Router struct {
	fallback    Engine
	byExtension map[string]Engine
}

func NewRouter(fallback Engine) *Router {
	return &Router{fallback: fallback, byExtension: map[string]Engine{}}
}

// Register binds ext (with or without the leading dot) to engine.
func (r *Router) Register(ext string, engine Engine) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.byExtension[ext] = engine
}

func (r *Router) EngineFor(source Source) (Engine, error) {
	if engine, ok := r.byExtension[source.Extension()]; ok {
		return engine, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("no query engine for %q", source.FileName)
	}
	return r.fallback, nil
}

func (r *Router) Dialect() string {
	if r.fallback == nil {
		return ""
	}
	return r.fallback.Dialect()
}

func (r *Router) Execute(ctx context.Context, request Request) (Result, error) {
	engine, err := r.EngineFor(request.Source)
	if err != nil {
		return Result{}, err
	}
	return engine.Execute(ctx, request)
}

func (r *Router) Describe(ctx context.Context, source Source, sampleRows int) ([]Table, error) {
	engine, err := r.EngineFor(source)
	if err != nil {
		return nil, err
	}
	return engine.Describe(ctx, source, sampleRows)
}

// DialectFor resolves the dialect engine will use for source.
func DialectFor(engine Engine, source Source) string {
	if router, ok := engine.(*Router); ok {
		if resolved, err := router.EngineFor(source); err == nil {
			return resolved.Dialect()
		}
	}
	return engine.Dialect()
}
