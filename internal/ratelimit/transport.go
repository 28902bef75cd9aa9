package ratelimit

import "net/http"

// ThrottledTransport waits on a Limiter before every request.
type ThrottledTransport struct {
	next    http.RoundTripper
	limiter Limiter
}

func NewThrottledTransport(limiter Limiter, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if limiter == nil {
		return next
	}
	return &ThrottledTransport{next: next, limiter: limiter}
}

func (t *ThrottledTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, err := t.limiter.Take(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}
