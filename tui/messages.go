package tui

import (
	"time"

	"github.com/go-authgate/session-cli/apiclient"
)

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{}

// MsgRequesting signals that an API request is being sent.
type MsgRequesting struct {
	Method string
	Path   string
}

// MsgRefreshing signals that the access token was rejected and a refresh started.
type MsgRefreshing struct{ Started time.Time }

// MsgRefreshOK signals that the token was refreshed successfully.
type MsgRefreshOK struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgSessionExpired signals that the stored session was cleared and a new login is needed.
type MsgSessionExpired struct{}

// MsgSessionSaved signals that login or register stored fresh tokens.
type MsgSessionSaved struct{ Target string }

// MsgSessionCleared signals that logout removed the stored tokens.
type MsgSessionCleared struct{}

// MsgResponse carries the unwrapped body of a successful request.
type MsgResponse struct{ Body string }

// MsgRequestFailed signals that a request ended with a normalized error.
type MsgRequestFailed struct{ Err error }

// MsgBurstResult reports the outcome of one request of a burst.
type MsgBurstResult struct {
	Index int
	Err   error
}

// MsgStats carries the client counters at the end of a command.
type MsgStats struct{ Stats apiclient.Stats }

// MsgStatus carries the stored session summary.
type MsgStatus struct{ Info StatusInfo }

// MsgDone signals that the command finished successfully.
type MsgDone struct{}

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
