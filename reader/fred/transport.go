package fred

import "net/http"

// headerTransport stamps every outgoing request with a fixed user agent and
// the JSON accept header the proxies forward upstream.
type headerTransport struct {
	agent string
	base  http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	req.Header.Set("Accept", "application/json")
	return t.base.RoundTrip(req)
}
