package core

// Frame is a raw wire payload (JSON-encoded signaling message).
type Frame []byte

// ConnID identifies one transport instance. A reconnecting tab gets a new
// ConnID even when it carries the same user identity.
type ConnID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
