package executor

import (
	"context"
	"fmt"
	"sort"

	"github.com/sakif/codebuddy/internal/apperror"
)

// Router dispatches each request to the executor registered for its
// language. Languages without an entry fall back to Default when set.
type Router struct {
	byLanguage map[string]Executor
	Default    Executor
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{byLanguage: make(map[string]Executor)}
}

// Handle registers exec for lang.
func (r *Router) Handle(lang string, exec Executor) {
	r.byLanguage[NormalizeLanguage(lang)] = exec
}

// Languages lists the explicitly registered languages in sorted order.
func (r *Router) Languages() []string {
	langs := make([]string, 0, len(r.byLanguage))
	for l := range r.byLanguage {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Empty reports whether the router can run nothing at all.
func (r *Router) Empty() bool {
	return len(r.byLanguage) == 0 && r.Default == nil
}

func (r *Router) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	req.Language = NormalizeLanguage(req.Language)
	if exec, ok := r.byLanguage[req.Language]; ok {
		return exec.Execute(ctx, req)
	}
	if r.Default != nil {
		return r.Default.Execute(ctx, req)
	}
	return nil, apperror.ValidationFailed("language", fmt.Sprintf("language %q is not supported", req.Language))
}
