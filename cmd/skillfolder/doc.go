// Package main hosts the skillfolder service entrypoint.
//
// Architecture overview:
//   - Pipeline: internal/pipeline.Runner drives one sync per site: discover
//     page URLs via the Firecrawl map endpoint, diff them against persisted
//     run state, submit new and possibly changed pages as one batch scrape
//     job, poll it to completion, then reconcile the results into the local
//     skill folder and re-render SKILL.md.
//   - Batch jobs: internal/orchestrator owns the job state machine. The job
//     handle is persisted before the first poll, so a crash mid-poll leaves
//     a resumable record and the next run picks the job up instead of paying
//     for a fresh submission.
//   - Reconciliation: internal/reconcile applies scrape results one document
//     at a time with atomic writes. Pages that stay missing from discovery
//     for three consecutive runs are deleted; anything less is treated as a
//     transient listing gap.
//   - Persistence & fanout: run state goes to a file, memory, or Postgres
//     store; documents go to a local directory, memory, or GCS. A compact
//     run event is published to Pub/Sub when a project is configured.
//   - Configuration & plumbing: Viper populates config from files and
//     SKILLFOLDER_* env vars; zap provides structured logging; Prometheus
//     metrics are exported on /metrics via the progress hub's sink.
//
// Run locally: go run ./cmd/skillfolder sync example.com, or serve the HTTP
// API with go run ./cmd/skillfolder serve.
package main
