// Package bind is the synchronization engine: it maintains live,
// bidirectional equivalence between an in-memory nested key-value tree and
// a hierarchical external node tree owned by a host environment.
//
// Application writes go through the Session's Proxy, which updates the raw
// logical value and mirrors the change into the external tree. External
// change notifications flow the opposite direction through the path index
// back into the logical tree. A per-session reentrancy guard ensures the
// engine's own mutations never re-trigger themselves, so there is at most
// one authoritative writer at any instant.
//
// The engine is representation-agnostic: a Strategy decides whether
// containers carry scalar children as typed child value nodes
// (FolderStrategy) or as named attributes (AttributeStrategy).
package bind
