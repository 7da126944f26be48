package relay

import (
	"context"
)

// HandlerFunc receives one relayed message. Returning an error terminates the
// subscription that invoked it.
type HandlerFunc func(ctx context.Context, eventID string, data []byte) error

// Relay forwards serialized action messages between server instances so that
// a message accepted on one node reaches client proxies registered on
// another. Topics are keyed by client session id and deliver in publish order
// within a session; nothing is promised across sessions.
type Relay interface {
	// Publish appends data to the session's topic and returns the generated
	// event id for the message.
	Publish(ctx context.Context, sessionID string, data []byte) (eventID string, err error)

	// Subscribe blocks, invoking handler for each message on the session's
	// topic until ctx is done, the handler returns an error, or the topic is
	// cleaned up. An empty lastEventID starts from the next published
	// message; otherwise delivery resumes from the message after lastEventID.
	Subscribe(ctx context.Context, sessionID string, lastEventID string, handler HandlerFunc) error

	// Cleanup removes all state retained for the session's topic, including
	// any backlog, and terminates its subscribers.
	Cleanup(ctx context.Context, sessionID string) error
}

// Envelope wraps a relayed message with its topic-unique, monotonically
// increasing event id.
type Envelope struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}
