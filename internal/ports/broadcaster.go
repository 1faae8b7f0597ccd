package ports

// Broadcaster is the "emit to group" primitive every component fans out
// through. The websocket hub implements it in-process; a pub/sub backplane
// can sit underneath it for multi-process deployments without changing any
// component contract.
type Broadcaster interface {
	JoinGroup(connID, group string)
	LeaveGroup(connID, group string)
	EmitToConn(connID, event string, data any)
	EmitToGroup(group, event string, data any)
	// EmitToGroupExceptConn skips exactly one socket (presence:enter
	// suppression for the just-connected socket).
	EmitToGroupExceptConn(group, event string, data any, exceptConnID string)
	// EmitToGroupExceptClient skips every socket bound to the given
	// clientId (a sender never receives its own chat:private back).
	EmitToGroupExceptClient(group, event string, data any, exceptClientID string)
}

// Backplane distributes group emits to hubs in other processes. Publish is
// called for every local group emit; the handler passed to Subscribe is
// invoked for emits originating elsewhere.
type Backplane interface {
	Publish(group, event string, data any, exceptClientID string) error
	Subscribe(handler func(group, event string, data []byte, exceptClientID string)) error
	Close() error
}
