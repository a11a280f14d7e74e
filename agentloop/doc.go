// Package agentloop implements an autonomous task-execution loop that
// pairs a large language model with tools.
//
// A Loop takes a natural-language query, classifies it, and iterates
// model completions against a ToolRegistry until the model produces a
// final answer or the iteration limit is reached. Progress is recorded in
// an append-only Checkpoint; interrupted or exhausted runs end in a
// partial-result Report instead of a bare failure.
//
// # Architecture
//
//   - Loop: the orchestrator. Classifies the query, drives iterations,
//     executes tool calls, records checkpoints, and synthesizes partial
//     results.
//   - ToolRegistry: maps tool names to executors. Invoke never lets a
//     tool failure, panic, or timeout escape as anything but a
//     structured error result.
//   - Source: supplies tool descriptors; discovery is lazy and fault
//     isolated per source. CoreToolSource provides the built-in
//     filesystem and shell tools over an ExecutionEnvironment.
//   - Checkpoint: durable, ordered step records keyed by a deterministic
//     task id derived from the query, stored in a taskstore.Store.
//   - EventEmitter: typed event stream for host application integration.
//
// # Quick Start
//
//	adapter, _ := llm.NewGollmAdapter("openai", os.Getenv("OPENAI_API_KEY"))
//	client, _ := llm.NewClient(llm.WithProvider(adapter))
//
//	registry := agentloop.NewToolRegistry()
//	env := agentloop.NewLocalExecutionEnvironment("/path/to/project")
//	store, _ := taskstore.NewFile("/path/to/checkpoints")
//
//	loop := agentloop.NewLoop(client, registry,
//	    agentloop.WithStore(store),
//	    agentloop.WithSources(agentloop.CoreToolSource(env, agentloop.DefaultConfig())))
//
//	outcome := loop.Run(ctx, "Find all TODO comments and summarize them")
//	switch outcome.Status {
//	case agentloop.StatusDone:
//	    fmt.Println(outcome.Answer)
//	case agentloop.StatusPartial:
//	    fmt.Println(outcome.Report)
//	case agentloop.StatusFailed:
//	    fmt.Println(outcome.Message)
//	}
package agentloop
