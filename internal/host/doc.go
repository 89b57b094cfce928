/*
Package host is the trusted side of the widget protocol.

A Session wraps one sandbox process: a reader goroutine decodes responses
from its stdout, stderr lines are forwarded to the log, and every call is a
single round trip bounded by Config.ResponseTimeout. Timeouts, framing
errors and unexpected responses kill the process; the session is then
closed for good.

A Manager keys sessions by icon path. It spawns a sandbox on first use,
respawns after a fatal failure, and stops respawning a path for
Config.BreakerCooldown once it has failed Config.BreakerFailures times in a
row. Draw commands pass through a Sanitizer before they are returned.

Script failures degrade gracefully:

	Render    -> *RenderError
	Dispatch  -> EventResult{Handled: false}, logged
	Position  -> ErrSessionFault (the sandbox has a grid fallback, so this is fatal)
*/
package host
