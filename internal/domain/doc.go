// Package domain contains the core domain entities and value objects for bulkship.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (HTTP, file system, logging) and
// contains only pure business logic.
//
// # Entities
//
//   - [Record]: One encoded bulk entry (action line plus document line)
//   - [Batch]: An ordered group of records sent as one request body
//   - [Request]: A replayable transport request, the unit persisted on disk
//   - [SendError]: A classified delivery failure (transient or permanent)
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Owned by exactly one component at a time (accumulator, sender, queue)
package domain
