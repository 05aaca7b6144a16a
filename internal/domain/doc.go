// Package domain contains the core domain entities and value objects for syncward.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, storage, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [Field]: A tracked editable field with its synchronization status
//   - [QueuedOp]: A durable record of a write that failed while offline
//   - [ReviewState]: The server-authoritative review workflow snapshot
//   - [GradeDraft]: A per-item grade/explanation draft
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Focused on business rules and invariants
//   - Testable without mocks or external systems
package domain
