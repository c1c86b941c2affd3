// Package server implements the HTTP side of the file transfer test server.
// It wires the upload parser, storage backend, optional thumbnailer and
// catalog into a gorilla/mux router and provides lifecycle helpers used by
// tests and the testserver binary.
package server
