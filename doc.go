// Package netcore provides the data model shared by the asynchronous
// transport engine: descriptors, transports, endpoints, interest sets, the
// error taxonomy, and the collaborator interfaces (Resolver, Encryption,
// Compression, Serialization, Monitor) that the core treats as external.
//
// The engine itself lives in the sibling packages chronology, registry,
// driver, queue, socket and iface. This package exists so all of them can
// agree on one vocabulary without importing each other's internals.
package netcore
