// Package ports defines the interfaces between the sync engine and its
// collaborators: the review service, the durable queue store, the grading
// draft store, the clock, and the host application's connectivity and
// visibility signals.
//
// Adapters under internal/adapters provide the production implementations;
// tests substitute in-memory fakes.
package ports
