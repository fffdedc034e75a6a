// Package swarmcore is the core orchestration engine of a multi-agent task
// execution platform.
//
// An operator submits a natural-language job; an external planner (out of
// scope for this module) decomposes it into a DAG of sub-tasks. swarmcore
// takes it from there: it publishes the sub-tasks onto a Task Board, drives
// an event-driven Wave Executor that dispatches every ready task to a Worker
// Agent backed by an LLM client, routes tool calls through a fallback-aware
// Tool Registry, runs a Quality Gate over each completion, and aggregates
// the results into a typed output.
//
// # Core subsystems
//
//   - board: the concurrency-safe task queue with dependency tracking.
//   - wave: the event-driven parallel dispatcher over the Task Board.
//   - worker: the bounded tool-calling loop driving one LLM conversation
//     per sub-task.
//   - tools: the tool registry and its sandbox fallback tools.
//   - quality: the post-completion scoring gate and retry/adjustment policy.
//   - aggregate: conflict resolution and typed-output assembly.
//   - orchestrator: glues planner output to the Task Board and emits
//     progress events.
//
// # Out of scope
//
// The planning LLM prompt itself, HTTP/WebSocket front-end routes, artifact
// persistence, and the internals of multimodal media-synthesis APIs are all
// treated as external collaborators reached only through their contracts.
package swarmcore
