// Package camouflage rewrites a client's proxy request so that it looks like
// a request sent directly to the origin server.
package camouflage

import (
	"strings"

	"github.com/die-net/camoproxy/internal/request"
)

const httpScheme = "http://"

// Headers the proxy never forwards. Proxy-Connection is hop-by-hop;
// Accept-Encoding is dropped so the origin answers uncompressed.
var strippedHeaders = []string{"Proxy-Connection", "Accept-Encoding"}

// Options controls the optional parts of Transform.
type Options struct {
	// InjectCacheHeaders adds "Cache-Control: max-age=0" and
	// "Connection: keep-alive" when the client did not send them.
	InjectCacheHeaders bool
}

// Transform rewrites r in place.
func Transform(r *request.Request, opts Options) {
	for _, name := range strippedHeaders {
		r.Header.Del(name)
	}

	if opts.InjectCacheHeaders {
		r.Header.SetDefault("Cache-Control", "max-age=0")
		r.Header.SetDefault("Connection", "keep-alive")
	}

	r.URI = OriginForm(r.URI)
}

// OriginForm converts an absolute-form "http://host/path" target to
// "/path", or "/" when there is no path. Only the literal lowercase
// "http://" prefix is recognized; any other target is returned unchanged.
func OriginForm(uri string) string {
	rest, ok := strings.CutPrefix(uri, httpScheme)
	if !ok {
		return uri
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return "/"
}
