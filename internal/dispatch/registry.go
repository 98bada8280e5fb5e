// Package dispatch maps model-issued function calls onto backend
// operations through a typed registry checked against the catalog.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
	"github.com/capitalize-ai/assistant-engine/internal/llm"
	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
	"github.com/capitalize-ai/assistant-engine/pkg/tracing"
)

// Result is the JSON-ready envelope returned to the model. It always holds
// "success"; failures add "error" and "code".
type Result map[string]any

// Success reports the envelope's success flag.
func (r Result) Success() bool {
	ok, _ := r["success"].(bool)
	return ok
}

// Failure builds an error envelope from err.
func Failure(err error) Result {
	return Result{
		"success": false,
		"error":   apperr.Message(err),
		"code":    apperr.CodeOf(err),
	}
}

// Handler is one registered capability.
type Handler interface {
	Name() string
	fields() []string
	call(ctx context.Context, raw []byte) (Result, error)
}

type typed[A any] struct {
	name string
	fn   func(ctx context.Context, args A) (Result, error)
	tags []string
}

// Typed registers fn under name. A must be a struct whose JSON tags match
// the catalog schema of name exactly.
func Typed[A any](name string, fn func(ctx context.Context, args A) (Result, error)) Handler {
	return &typed[A]{name: name, fn: fn, tags: jsonFields(reflect.TypeFor[A]())}
}

func (t *typed[A]) Name() string     { return t.name }
func (t *typed[A]) fields() []string { return t.tags }

func (t *typed[A]) call(ctx context.Context, raw []byte) (Result, error) {
	var args A
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, apperr.Validation("invalid arguments for %s: %v", t.name, err)
		}
	}
	return t.fn(ctx, args)
}

func jsonFields(t reflect.Type) []string {
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("dispatch: argument type %s is not a struct", t))
	}
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			continue
		case "":
			name = f.Name
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Registry executes catalog functions.
type Registry struct {
	handlers map[string]Handler
	catalog  []llm.FunctionDef
	log      *logger.Logger
	tracer   trace.Tracer
}

// NewRegistry binds handlers to catalog. It fails when a catalog entry has
// no handler, a handler has no catalog entry, the argument fields differ
// from the schema properties, or a required name is not a field.
func NewRegistry(catalog []llm.FunctionDef, log *logger.Logger, handlers ...Handler) (*Registry, error) {
	byName := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if _, dup := byName[h.Name()]; dup {
			return nil, fmt.Errorf("dispatch: duplicate handler %q", h.Name())
		}
		byName[h.Name()] = h
	}

	var problems []string
	seen := make(map[string]bool, len(catalog))
	for _, def := range catalog {
		seen[def.Name] = true
		h, ok := byName[def.Name]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: no handler", def.Name))
			continue
		}
		problems = append(problems, drift(def, h.fields())...)
	}
	for name := range byName {
		if !seen[name] {
			problems = append(problems, fmt.Sprintf("%s: not in catalog", name))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("dispatch: catalog mismatch: %s", strings.Join(problems, "; "))
	}

	return &Registry{
		handlers: byName,
		catalog:  catalog,
		log:      log.With("component", "dispatcher"),
		tracer:   tracing.Tracer("dispatch"),
	}, nil
}

func drift(def llm.FunctionDef, fields []string) []string {
	props, _ := def.Parameters["properties"].(map[string]any)
	want := make([]string, 0, len(props))
	for k := range props {
		want = append(want, k)
	}
	sort.Strings(want)

	var problems []string
	if strings.Join(want, ",") != strings.Join(fields, ",") {
		problems = append(problems, fmt.Sprintf("%s: schema properties [%s] differ from argument fields [%s]",
			def.Name, strings.Join(want, ","), strings.Join(fields, ",")))
	}

	have := make(map[string]bool, len(fields))
	for _, f := range fields {
		have[f] = true
	}
	required, _ := def.Parameters["required"].([]string)
	for _, r := range required {
		if !have[r] {
			problems = append(problems, fmt.Sprintf("%s: required %q is not a field", def.Name, r))
		}
	}
	return problems
}

// Catalog returns the functions this registry serves.
func (r *Registry) Catalog() []llm.FunctionDef {
	return r.catalog
}

// Execute runs the named function. It never panics and never returns a
// nil Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result) {
	ctx, span := r.tracer.Start(ctx, "dispatch.execute", trace.WithAttributes(attribute.String("function.name", name)))
	defer func() {
		ok := result.Success()
		metrics.RecordFunctionCall(name, ok)
		if !ok {
			span.SetStatus(codes.Error, fmt.Sprint(result["error"]))
		}
		span.End()
	}()

	h, ok := r.handlers[name]
	if !ok {
		r.log.Warn("unknown function", "function", name)
		return Failure(apperr.NotFound("unknown function"))
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("function panicked", "function", name, "panic", rec, "stack", string(debug.Stack()))
			result = Failure(apperr.Internal("internal error"))
		}
	}()

	raw, err := json.Marshal(args)
	if err != nil {
		return Failure(apperr.Validation("invalid arguments for %s", name))
	}

	out, err := h.call(ctx, raw)
	if err != nil {
		r.log.Warn("function failed", "function", name, "code", apperr.CodeOf(err), "error", err)
		return Failure(err)
	}
	if out == nil {
		out = Result{}
	}
	if _, set := out["success"]; !set {
		out["success"] = true
	}
	return out
}

// fromAction converts a service ActionResult into an envelope.
func fromAction(a *model.ActionResult) Result {
	out := Result{
		"success": a.Success(),
		"kind":    a.Kind,
		"message": a.Message,
	}
	for k, v := range a.Payload {
		out[k] = v
	}
	switch a.Kind {
	case model.ActionError:
		out["error"] = a.Message
		out["code"] = a.Code
	case model.ActionConfirmationRequired:
		out["requires_confirmation"] = true
		out["code"] = apperr.CodeConfirmationRequired
	}
	return out
}
