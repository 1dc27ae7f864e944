// Package commands defines the paircrypt CLI and wires dependencies for subcommands.
//
// Commands
//
//   - init           Create the local identity
//   - fingerprint    Print the identity fingerprint
//   - publish        Publish your key bundle to the directory
//   - send           Encrypt and send a message, starting a session if needed
//   - recv           Fetch and decrypt queued messages
//   - status         Show the session phase with a peer
//   - reset          Tear down the session with a peer
//
// # Implementation
//
// The root command builds the dependency graph (stores, key manager,
// services, directory client) from persistent flags before any subcommand
// runs, so handlers share one app.Wire and one logger.
package commands
