// Package app wires application dependencies for the CLI.
//
// It builds the concrete stores, the key manager, the protocol services and
// the directory client from Config, and exposes them via Wire for commands to
// use. NewLogger builds the zerolog logger every component shares.
package app
