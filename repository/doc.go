// Package repository is a small transactional content repository: a tree of
// typed nodes with multi valued properties, mixins and same name siblings.
//
// Work happens in a Session which operates on a private snapshot of the tree.
// Nothing a session writes is visible to other sessions until Save succeeds,
// and a session that is discarded with Logout leaves no trace. Save uses an
// optimistic revision check: when another session committed after Login the
// save fails with a conflict and the caller can retry on a fresh session,
// Repository.Update does this automatically.
package repository
