// Package main runs the in-memory HTTP directory and mailbox used by
// paircrypt during development and tests. It stores published key bundles and
// queues encrypted envelopes for recipients until they acknowledge them.
//
// HTTP API
//
//	PUT /v1/bundles/{addr}
//	    Store the KeyBundle for {addr}, replacing any previous one.
//
//	GET /v1/bundles/{addr}
//	    Return the bundle for {addr}. Its one-time pre-key is handed out once;
//	    later fetches return the bundle without it until the owner publishes
//	    again.
//
//	POST /v1/messages/{addr}   { "from": ..., "envelope": ... }
//	    Enqueue an encoded envelope for {addr}, stamped with the current time.
//
//	GET /v1/messages/{addr}?limit=N
//	    Return up to N queued items, oldest first, without removing them.
//
//	POST /v1/messages/{addr}/ack   { "count": N }
//	    Drop the first N queued items for {addr}.
//
// {addr} is "name.device". All state is held in memory and lost on exit. The
// directory never sees plaintext or private keys.
package main
