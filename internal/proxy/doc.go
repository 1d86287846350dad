// Package proxy accepts client connections and runs the forward-proxy
// pipeline on each one: frame the request, parse it, camouflage it, and
// relay it to the origin.
//
// Every connection is handled by its own goroutine, which owns the client
// socket until the pipeline finishes. A failure in one connection only
// closes that connection.
package proxy
