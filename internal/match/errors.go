package match

import "errors"

var (
	// ErrIllegalResponse is the only recoverable failure: the peer's answer did
	// not select a legal move. The turn is retried with the retry prefix.
	ErrIllegalResponse = errors.New("match: illegal response")
	// ErrProtocolViolation covers replies that break the conversation contract.
	ErrProtocolViolation = errors.New("match: protocol violation")
	// ErrTransport wraps failures reaching a peer or the evaluator.
	ErrTransport = errors.New("match: transport failure")
	// ErrRetryLimit is returned when a peer keeps answering illegally.
	ErrRetryLimit = errors.New("match: retry limit exceeded")
)
