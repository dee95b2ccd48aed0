// Package router matches normalized change events against handler groups.
//
// Each HandlerGroup carries an ordered rule list and an ordered handler list.
// Route walks events in record order and groups in registration order, and
// emits one Match per event and group whose rules all accept the event. Rules
// are evaluated with an explicit early exit, so a rule only runs when every
// rule before it in the same group returned true.
//
// The router never invokes handlers. Running them, in sequence or in
// parallel, with or without retries, is left to the caller; package dispatch
// offers one way to do it.
package router
