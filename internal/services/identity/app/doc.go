// Package server composes and runs the identity process boundary.
//
// It hosts the REST API over a single SQLite store so issuance, verification
// and token decisions are made from one source of truth.
package server
