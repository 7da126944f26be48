// Package glspserver routes session-addressed diagram protocol messages to
// transport-level client proxies. The core is sessions.ProxyRegistry, a
// concurrent registry mapping logical session ids to the physical client
// connections backing them, with synchronous fan-out delivery. Around it sit
// a connect/disconnect lifecycle manager (sessions.Manager), pluggable
// cross-instance forwarding (relay, with memory and Redis Streams
// implementations), and a source-model file watcher (workspace) that pushes
// change notifications to a session's clients.
//
// A single-instance setup wires the pieces like this:
//
//	registry := sessions.NewRegistry()
//	srv := glspserver.New(registry)
//	mgr := sessions.NewManager(registry, nil)
//
//	// transport layer, per accepted connection:
//	mgr.Connect(ctx, sessionID, conn)
//	defer mgr.DisconnectAll(ctx, conn)
//
//	// protocol engine, per outbound message:
//	if err := srv.Dispatch(ctx, msg); err != nil { ... }
//
// For horizontally scaled deployments, pass a relay (e.g. redisrelay) to
// both the Server and the Manager; messages dispatched on any instance reach
// the proxies registered on whichever instance holds them.
package glspserver
