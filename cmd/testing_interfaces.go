package main

import "net/http"

// httpDoer is the client contract the integration readiness checks need.
type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}
