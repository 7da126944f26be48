// Package sessions implements the session-addressed routing core of the
// server: a registry of transport-level client proxies keyed by logical
// session id, with fan-out delivery of action messages to every proxy
// registered for the target session.
//
// Layers & Roles
//
//	Protocol server -> calls ProxyRegistry.Process to deliver action messages
//	Manager         -> connect/disconnect lifecycle as physical connections attach/detach
//	ProxyRegistry   -> session-to-proxies table, concurrent mutation and fan-out
//	relay.Relay     -> optional cross-instance forwarding (memoryrelay, redisrelay)
//
// A session id is present in the registry iff at least one proxy is
// registered for it; empty collections are pruned immediately. The same
// proxy may be registered under several sessions at once, and under one
// session several times; each registration is removed independently.
//
// Delivery is synchronous and unbuffered: Process invokes each proxy before
// returning, and an unroutable session id is a hard error rather than a
// silent drop. Proxy failures are never caught or retried here; whatever a
// proxy returns propagates to the caller, which may abort delivery to the
// proxies that follow it in the same call.
package sessions
