package transport

import "github.com/coder/websocket"

// closeStatusLoggedOut is the bridge's close code for an explicit logout or
// credential revocation. Mirrors HTTP 401 in the 4xxx application range.
const closeStatusLoggedOut websocket.StatusCode = 4401

// isLoggedOut reports whether a read/dial error carries an explicit
// logout/unauthorized close. Such failures are fatal: the stored
// credentials are dead and reconnecting in place cannot succeed.
func isLoggedOut(err error) bool {
	switch websocket.CloseStatus(err) {
	case closeStatusLoggedOut, websocket.StatusPolicyViolation:
		return true
	}
	return false
}
