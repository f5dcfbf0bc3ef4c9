package web

// Kernel event names triggered on the Server component around request
// handling. Handlers attach with Server.On; event data carries "method",
// "path" and "requestID" entries, plus "status" after the handler ran and
// "error" on failures.
const (
	// EventBeforeRequest fires when a request enters the middleware
	// chain. A handler setting Handled short-circuits the request with
	// the status under the event's "status" data entry.
	EventBeforeRequest = "beforeRequest"

	// EventBeforeHandler fires after routing, immediately before the
	// matched handler runs.
	EventBeforeHandler = "beforeHandler"

	// EventAfterRequest fires once the response is written.
	EventAfterRequest = "afterRequest"

	// EventRequestError fires when a handler panics or an action fails.
	EventRequestError = "requestError"
)
