// Package storage defines the usage ledger: one Record per chat-completion
// request, kept for accounting. Message content is never recorded.
//
// Backends live in subpackages (memory, postgres). This package holds the
// Ledger interface, the record and summary types, sentinel errors, and the
// Discard ledger used when usage recording is disabled.
package storage
