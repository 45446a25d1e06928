package model

import "github.com/m-mizutani/goerr/v2"

var (
	// TagValidation marks errors caused by malformed or missing input
	TagValidation = goerr.NewTag("validation")

	// TagNotFound marks errors for unknown corpora, documents or sessions
	TagNotFound = goerr.NewTag("not_found")

	// TagUpstream marks failures reported by external backends
	TagUpstream = goerr.NewTag("upstream")
)

var (
	ErrCorpusNotFound  = goerr.New("corpus not found", goerr.T(TagNotFound))
	ErrSessionNotFound = goerr.New("session not found", goerr.T(TagNotFound))
	ErrObjectNotFound  = goerr.New("object not found", goerr.T(TagNotFound))
)
