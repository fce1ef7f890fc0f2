// Package dispatcher defines the typed tool-call contracts an external
// RPC router hands requests through and reads results from. The
// router itself, the transport it rides on, and authentication are
// all external collaborators (spec.md §1); this package owns only the
// shapes and the tool-exposure filter policy, never a network listener.
package dispatcher
