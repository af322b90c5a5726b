package federation

import "errors"

var (
	// ErrNodeExists is surfaced to the admin as "connection already exists
	// or is pending" when initiating pairing to a known hostname.
	ErrNodeExists = errors.New("connection already exists or is pending")
	// ErrNodeNotConnected means the target has no usable shared secret;
	// propagation to it is skipped, not attempted.
	ErrNodeNotConnected = errors.New("node is not connected")
	ErrTokenInvalid     = errors.New("invalid pairing token")
	ErrTokenExpired     = errors.New("token expired")
	// ErrMalformedResponse means the remote answered without a required
	// field (shared_secret, nu_id). Surfaced to the initiating admin.
	ErrMalformedResponse = errors.New("malformed response from remote node")
	// ErrLocalEntity means a resolver was handed a reference whose origin is
	// this node itself; the entity must be resolved locally, not stubbed.
	ErrLocalEntity = errors.New("entity is local to this node")
)
