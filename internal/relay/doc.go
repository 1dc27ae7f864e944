// Package relay talks to, and implements, the directory and mailbox service.
//
// The directory stores one key bundle per address and hands out its
// one-time pre-key at most once. The mailbox is a store-and-forward queue of
// encoded envelopes per address; items stay queued until acknowledged.
//
// Client is the HTTP implementation of domain.RelayClient. Server is the
// matching http.Handler used by cmd/directory.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as errors with the HTTP method,
// path, and status text to aid diagnostics.
package relay
