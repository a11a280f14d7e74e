package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/agentd-dev/agentd/llm"
)

// ErrDuplicateTool is returned by Register when a tool name is already taken.
// The first registration wins.
var ErrDuplicateTool = errors.New("agentloop: tool already registered")

// ToolExecutor is the function signature for tool execution.
type ToolExecutor func(ctx context.Context, arguments json.RawMessage) (string, error)

// ToolDescriptor pairs a tool's schema with its executor. Descriptors are
// immutable once registered.
type ToolDescriptor struct {
	Name        string
	Description string
	Parameters  map[string]any
	Execute     ToolExecutor
}

// Definition returns the serializable tool description for the model.
func (d ToolDescriptor) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// InvokeResult is the uniform outcome of a tool invocation. Every call to
// Invoke produces one, whatever the tool did: success, returned error,
// panic, timeout, or unknown name.
type InvokeResult struct {
	Status  string `json:"status"` // "ok" or "error"
	Content string `json:"content,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failed reports whether the invocation did not succeed.
func (r InvokeResult) Failed() bool { return r.Status != "ok" }

// Text returns the content for successes and the error message for failures,
// suitable for feeding back into the conversation.
func (r InvokeResult) Text() string {
	if r.Failed() {
		return r.Message
	}
	return r.Content
}

func okResult(content string) InvokeResult {
	return InvokeResult{Status: "ok", Content: content}
}

func errorResult(format string, args ...any) InvokeResult {
	return InvokeResult{Status: "error", Message: fmt.Sprintf(format, args...)}
}

// ToolRegistry is the single source of truth mapping tool names to
// executable capabilities. It is built up during discovery and treated as
// read-only afterwards; concurrent Invoke calls are safe.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*ToolDescriptor
	order []string
	once  sync.Once
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]*ToolDescriptor),
	}
}

// Register adds a tool to the registry. Registering a name twice returns
// ErrDuplicateTool; the existing descriptor is kept.
func (r *ToolRegistry) Register(d ToolDescriptor) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("agentloop: tool name is empty")
	}
	if d.Execute == nil {
		return fmt.Errorf("agentloop: tool %q has no executor", d.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	r.tools[d.Name] = &d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor for name, if registered.
func (r *ToolRegistry) Lookup(name string) (*ToolDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// Schemas returns the definitions of all registered tools, in registration
// order, for passing to the model as available actions.
func (r *ToolRegistry) Schemas() []llm.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Invoke looks up name and executes it with the given arguments. It never
// panics and never returns a Go error: unknown names, tool errors, tool
// panics, and context cancellation/timeouts all come back as structured
// error results. Tool failures must not propagate past this boundary.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (result InvokeResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = errorResult("tool %s panicked: %v", name, rec)
		}
	}()

	d, ok := r.Lookup(name)
	if !ok {
		return errorResult("unknown tool %q", name)
	}

	type outcome struct {
		content string
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", name, rec)}
			}
		}()
		content, err := d.Execute(ctx, arguments)
		done <- outcome{content: content, err: err}
	}()

	select {
	case <-ctx.Done():
		return errorResult("tool %s: %v", name, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return errorResult("tool %s: %v", name, out.err)
		}
		// A tool may report failure through its payload instead of an
		// error value. Both count as failed steps.
		if embedded, ok := embeddedError(out.content); ok {
			return InvokeResult{Status: "error", Message: embedded, Content: out.content}
		}
		return okResult(out.content)
	}
}

// embeddedError detects `{"status": "error", ...}` payloads returned as a
// tool's nominal success value.
func embeddedError(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var payload struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return "", false
	}
	if payload.Status != "error" {
		return "", false
	}
	msg := payload.Message
	if msg == "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = "tool reported an error"
	}
	return msg, true
}

// NewTool builds a ToolDescriptor with a typed input struct. The parameter
// schema is reflected from T's fields and jsonschema tags; arguments from
// the model are unmarshalled into T, with malformed JSON repaired before
// the call is failed.
func NewTool[T any](name, description string, handler func(ctx context.Context, input T) (string, error)) ToolDescriptor {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	var input T
	schema := reflector.Reflect(input)
	params := map[string]any{
		"type":       "object",
		"properties": schema.Properties,
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}

	return ToolDescriptor{
		Name:        name,
		Description: description,
		Parameters:  params,
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			var input T
			if len(arguments) > 0 {
				if err := unmarshalArguments(arguments, &input); err != nil {
					return "", fmt.Errorf("invalid arguments: %w", err)
				}
			}
			return handler(ctx, input)
		},
	}
}

// unmarshalArguments unmarshals tool-call arguments, attempting a repair
// pass when the model emitted malformed JSON.
func unmarshalArguments(data json.RawMessage, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	fixed, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
