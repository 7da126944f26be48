// Package glsp defines the wire-level envelope exchanged between a diagram
// protocol server and its clients. An ActionMessage pairs a routing client
// session id with an opaque action body; only the action's kind discriminator
// is ever inspected here. Everything else about the action schema belongs to
// the protocol layer above this module.
package glsp
