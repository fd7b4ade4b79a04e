package redirect

import "errors"

var (
	// ErrMissingLocationHeader is returned when a redirect response has no
	// Location header.
	ErrMissingLocationHeader = errors.New("redirect: response has no Location header")

	// ErrInvalidLocation is returned when the Location header is not a valid
	// URI reference.
	ErrInvalidLocation = errors.New("redirect: invalid Location header")

	// ErrURIBuild is returned when a relative Location cannot be resolved
	// because the previous URI has no scheme or authority.
	ErrURIBuild = errors.New("redirect: cannot build next URI")

	// ErrNonReplayableBody is returned on a 307/308 for a streamed body when
	// the policy rejects non-replayable bodies.
	ErrNonReplayableBody = errors.New("redirect: body cannot be replayed")
)
