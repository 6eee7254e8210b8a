/*
Package ports defines the driven ports (interfaces) of the conversation engine.

These interfaces decouple the core logic from external implementations, allowing
the engine to work with various session backends, configuration sources and
messaging transports.

# Key Interfaces

  - SessionStore: versioned per-user session records (memory, redis, file, SQL).
  - DistributedLocker: cross-replica mutual exclusion for a user's session.
  - ConfigSource: yields raw flow and menu documents for the catalog.
  - ActionDispatcher: invokes registered actions by id.
  - MessageSender and Deduplicator: transport-side collaborators.
*/
package ports
