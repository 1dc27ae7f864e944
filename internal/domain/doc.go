// Package domain defines the data model, error categories and contracts
// shared across paircrypt. Types and interfaces live in the types and
// interfaces subpackages and are re-exported here as aliases.
package domain
