package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/agentd-dev/agentd/llm"
	"github.com/agentd-dev/agentd/taskstore"
)

// fakeModel replays a script of responses.
type fakeModel struct {
	mu       sync.Mutex
	script   []func(req llm.Request) (*llm.Response, error)
	calls    int
	requests []llm.Request
}

func (m *fakeModel) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	i := m.calls
	m.calls++
	if i < len(m.script) {
		return m.script[i](req)
	}
	// Past the script: keep answering.
	return answer("fallback answer")(req)
}

func answer(text string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Message: llm.AssistantMessage(text)}, nil
	}
}

func callTool(id, name, args string) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Message: llm.AssistantMessage("",
			llm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)})}, nil
	}
}

func modelFailure(err error) func(llm.Request) (*llm.Response, error) {
	return func(llm.Request) (*llm.Response, error) { return nil, err }
}

func testLoop(t *testing.T, model ModelCapability, opts ...LoopOption) *Loop {
	t.Helper()
	reg := NewToolRegistry()
	return NewLoop(model, reg, opts...)
}

// countingSource tracks whether discovery consulted it.
type countingSource struct {
	mu    sync.Mutex
	calls int
	tools []ToolDescriptor
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Tools() ([]ToolDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.tools, nil
}

func TestRunInformationalAnswersDirectly(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		answer("A goroutine is a lightweight thread."),
	}}
	src := &countingSource{tools: []ToolDescriptor{echoTool("echo")}}
	loop := testLoop(t, model, WithSources(src))

	outcome := loop.Run(context.Background(), "What is a goroutine?")
	if outcome.Status != StatusDone {
		t.Fatalf("expected DONE, got %s (%s)", outcome.Status, outcome.Message)
	}
	if outcome.Answer != "A goroutine is a lightweight thread." {
		t.Errorf("answer mismatch: %q", outcome.Answer)
	}
	if outcome.Iterations != 1 {
		t.Errorf("expected 1 iteration, got %d", outcome.Iterations)
	}
	if src.calls != 0 {
		t.Errorf("expected no discovery for informational query, got %d calls", src.calls)
	}
	// Informational requests carry no tool definitions.
	if len(model.requests[0].Tools) != 0 {
		t.Errorf("expected no tools in request, got %d", len(model.requests[0].Tools))
	}
}

func TestRunActionDiscoversLazilyOnce(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		answer("done"), answer("done"),
	}}
	src := &countingSource{tools: []ToolDescriptor{echoTool("echo")}}
	loop := testLoop(t, model, WithSources(src))

	loop.Run(context.Background(), "run the tests")
	loop.Run(context.Background(), "run the tests again")
	if src.calls != 1 {
		t.Errorf("expected discovery exactly once, got %d calls", src.calls)
	}
}

func TestRunExecutesToolsAndFinishes(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "echo", `{"q": 1}`),
		answer("finished with tool output"),
	}}
	src := &countingSource{tools: []ToolDescriptor{echoTool("echo")}}
	store := taskstore.NewMemory()
	loop := testLoop(t, model, WithSources(src), WithStore(store))

	outcome := loop.Run(context.Background(), "run the echo tool")
	if outcome.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", outcome.Status)
	}
	if outcome.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", outcome.Iterations)
	}

	// Second request carries the tool result back to the model.
	second := model.requests[1]
	found := false
	for _, msg := range second.Messages {
		if msg.ToolResult != nil && msg.ToolResult.ToolCallID == "c1" {
			found = true
			if msg.ToolResult.IsError {
				t.Error("expected successful tool result")
			}
		}
	}
	if !found {
		t.Error("expected tool result in follow-up request")
	}

	// Checkpoint was persisted with the successful step.
	cp, err := LoadCheckpoint(context.Background(), store, outcome.TaskID)
	if err != nil {
		t.Fatalf("expected persisted checkpoint: %v", err)
	}
	if !cp.HasAnySuccess() {
		t.Error("expected recorded success in checkpoint")
	}
}

func TestRunToolFailureFedBackNotFatal(t *testing.T) {
	failing := ToolDescriptor{
		Name: "broken",
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			return "", errors.New("no such file or directory")
		},
	}
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "broken", `{}`),
		answer("recovered despite the failure"),
	}}
	src := &countingSource{tools: []ToolDescriptor{failing}}
	loop := testLoop(t, model, WithSources(src))

	outcome := loop.Run(context.Background(), "run the broken tool")
	if outcome.Status != StatusDone {
		t.Fatalf("tool failure must not end the run: got %s (%s)", outcome.Status, outcome.Message)
	}

	second := model.requests[1]
	found := false
	for _, msg := range second.Messages {
		if msg.ToolResult != nil && msg.ToolResult.IsError {
			found = true
			if !strings.Contains(msg.ToolResult.Content, "no such file") {
				t.Errorf("expected error detail fed back, got %q", msg.ToolResult.Content)
			}
		}
	}
	if !found {
		t.Error("expected error tool result in follow-up request")
	}
}

func TestRunUnknownToolFedBack(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "imaginary", `{}`),
		answer("adjusted"),
	}}
	loop := testLoop(t, model, WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}))

	outcome := loop.Run(context.Background(), "run the imaginary tool")
	if outcome.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", outcome.Status)
	}
}

func TestRunIterationCapPartialWithProgress(t *testing.T) {
	// Model keeps calling the tool with fresh arguments; never answers.
	var script []func(llm.Request) (*llm.Response, error)
	for i := 0; i < 20; i++ {
		script = append(script, callTool("c", "echo", `{"i": `+string(rune('0'+i%10))+`}`))
	}
	model := &fakeModel{script: script}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.EnableLoopDetection = false
	store := taskstore.NewMemory()
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}),
		WithConfig(cfg),
		WithStore(store))

	outcome := loop.Run(context.Background(), "run echo forever")
	if outcome.Status != StatusPartial {
		t.Fatalf("expected PARTIAL, got %s", outcome.Status)
	}
	if outcome.Iterations != 3 {
		t.Errorf("expected iterations capped at 3, got %d", outcome.Iterations)
	}
	if model.calls != 3 {
		t.Errorf("expected exactly 3 model calls, got %d", model.calls)
	}
	if outcome.Report == nil {
		t.Fatal("expected partial report")
	}
	if len(outcome.Report.Completed) == 0 {
		t.Error("expected completed steps in report")
	}
	if !strings.Contains(outcome.Report.StopReason, "iteration limit") {
		t.Errorf("expected stop reason to mention the limit, got %q", outcome.Report.StopReason)
	}
}

func TestRunIterationCapFailedWithoutProgress(t *testing.T) {
	failing := ToolDescriptor{
		Name: "broken",
		Execute: func(ctx context.Context, arguments json.RawMessage) (string, error) {
			return "", errors.New("always fails")
		},
	}
	var script []func(llm.Request) (*llm.Response, error)
	for i := 0; i < 5; i++ {
		script = append(script, callTool("c", "broken", `{"attempt": `+string(rune('0'+i))+`}`))
	}
	model := &fakeModel{script: script}
	cfg := DefaultConfig()
	cfg.MaxIterations = 3
	cfg.EnableLoopDetection = false
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{failing}}),
		WithConfig(cfg))

	outcome := loop.Run(context.Background(), "run the broken tool forever")
	if outcome.Status != StatusFailed {
		t.Fatalf("expected FAILED with no successful steps, got %s", outcome.Status)
	}
	if outcome.Message == "" {
		t.Error("expected failure message")
	}
}

func TestRunModelErrorFails(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		modelFailure(&llm.AuthenticationError{ProviderError: llm.ProviderError{
			ClientError: llm.ClientError{Message: "bad key"},
		}}),
	}}
	loop := testLoop(t, model)

	outcome := loop.Run(context.Background(), "What is a mutex?")
	if outcome.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "model call failed") {
		t.Errorf("expected model failure message, got %q", outcome.Message)
	}
}

func TestRunModelErrorAfterProgressIsPartial(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "echo", `{}`),
		modelFailure(errors.New("provider exploded")),
	}}
	store := taskstore.NewMemory()
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}),
		WithStore(store))

	outcome := loop.Run(context.Background(), "run echo then fail")
	if outcome.Status != StatusPartial {
		t.Fatalf("expected PARTIAL, got %s", outcome.Status)
	}
	if _, err := LoadCheckpoint(context.Background(), store, outcome.TaskID); err != nil {
		t.Errorf("expected checkpoint persisted before failure: %v", err)
	}
}

func TestRunCancellationPersistsCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		func(req llm.Request) (*llm.Response, error) {
			// First call succeeds with a tool call, then the run is cancelled.
			return callTool("c1", "echo", `{}`)(req)
		},
		func(req llm.Request) (*llm.Response, error) {
			cancel()
			return nil, ctx.Err()
		},
	}}
	store := taskstore.NewMemory()
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}),
		WithStore(store))

	outcome := loop.Run(ctx, "run echo until cancelled")
	if outcome.Status != StatusPartial {
		t.Fatalf("expected PARTIAL after cancellation with progress, got %s", outcome.Status)
	}
	cp, err := LoadCheckpoint(context.Background(), store, outcome.TaskID)
	if err != nil {
		t.Fatalf("expected checkpoint persisted despite cancellation: %v", err)
	}
	if !cp.HasAnySuccess() {
		t.Error("expected recorded progress in checkpoint")
	}
}

func TestRunSteeringInjectedOnLoop(t *testing.T) {
	var script []func(llm.Request) (*llm.Response, error)
	for i := 0; i < 4; i++ {
		script = append(script, callTool("c", "echo", `{"same": true}`))
	}
	script = append(script, answer("broke out of the loop"))
	model := &fakeModel{script: script}

	cfg := DefaultConfig()
	cfg.MaxIterations = 10
	cfg.LoopDetectionWindow = 4
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}),
		WithConfig(cfg))

	outcome := loop.Run(context.Background(), "run echo repeatedly")
	if outcome.Status != StatusDone {
		t.Fatalf("expected DONE, got %s", outcome.Status)
	}

	// The request after detection carries the steering message.
	last := model.requests[len(model.requests)-1]
	found := false
	for _, msg := range last.Messages {
		if msg.Role == llm.RoleUser && strings.Contains(msg.Content, "repeating the same tool calls") {
			found = true
		}
	}
	if !found {
		t.Error("expected steering message in conversation after loop detection")
	}
}

func TestRunEmitsEvents(t *testing.T) {
	model := &fakeModel{script: []func(llm.Request) (*llm.Response, error){
		callTool("c1", "echo", `{}`),
		answer("done"),
	}}
	emitter := NewEventEmitter(64)
	loop := testLoop(t, model,
		WithSources(&countingSource{tools: []ToolDescriptor{echoTool("echo")}}),
		WithEventEmitter(emitter))

	loop.Run(context.Background(), "run echo once")
	emitter.Close()

	kinds := map[EventKind]int{}
	for event := range emitter.Events() {
		kinds[event.Kind]++
	}
	for _, want := range []EventKind{EventRunStart, EventIteration, EventToolCallStart, EventToolCallEnd, EventRunEnd} {
		if kinds[want] == 0 {
			t.Errorf("expected at least one %s event", want)
		}
	}
}

func TestRunConcurrentRunsIsolated(t *testing.T) {
	model := &fakeModel{} // always answers via fallback
	loop := testLoop(t, model, WithStore(taskstore.NewMemory()))

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 8)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = loop.Run(context.Background(), "What is concurrency?")
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		if outcome.Status != StatusDone {
			t.Errorf("run %d: expected DONE, got %s", i, outcome.Status)
		}
	}
}

func TestResumeReport(t *testing.T) {
	store := taskstore.NewMemory()
	loop := testLoop(t, &fakeModel{}, WithStore(store))

	cp := NewCheckpoint("resumable query")
	cp.AddStep("read_file", true, "data", "")
	if err := cp.Save(context.Background(), store); err != nil {
		t.Fatal(err)
	}

	report, err := loop.ResumeReport(context.Background(), "resumable query")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Completed) != 1 {
		t.Errorf("expected 1 completed step, got %d", len(report.Completed))
	}

	if _, err := loop.ResumeReport(context.Background(), "never ran"); !errors.Is(err, taskstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown query, got %v", err)
	}
}
