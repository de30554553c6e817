// Package intake provides an idempotent job-submission and retry-orchestration
// subsystem. It accepts multi-step workflow submissions, guarantees at-most-one
// logical execution per submission even under client retries or duplicate
// network calls, and supervises a fixed-order asynchronous pipeline
// (validation → analysis → generation → export) with bounded automatic
// retries, durable per-step status, and terminal-failure reporting.
//
// Intake is designed as a library, not a service. Import it, configure a
// store, plug in a workflow execution engine, and submit.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.Build(intake.DefaultConfig(), st)
//	if err != nil { ... }
//	res, err := eng.Submit(ctx, submission.Request{
//	    ApplicationID: "app-1",
//	    UserID:        "user-1",
//	    Data:          json.RawMessage(`{"position":"backend engineer"}`),
//	})
//
// # Architecture
//
// Intake follows a composable store pattern: the submission ledger and the
// job-status tracker each define their own store interface, and a single
// backend (Postgres, Redis, or Memory) implements both. The only concurrency
// primitive the backend must provide is a conditional insert keyed by the
// idempotency key; every duplicate or racing submission resolves there.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package intake
