package chat

import "errors"

// Error kinds surfaced by the chat request cycle. Callers distinguish
// them with errors.Is; an abstention is a normal response, never one of
// these.
var (
	// ErrInvalidRequest marks a malformed question, filter, or k. It is
	// returned before any external call is made.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRetrieval marks an embedding or vector-store failure on the
	// read path.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrGeneration marks a chat-provider failure.
	ErrGeneration = errors.New("generation failed")
)
