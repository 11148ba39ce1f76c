package domain

import "context"

// SignalAnalyzer produces AI-sourced observations about a claim.
// Implementations must degrade gracefully: on any failure they return an
// empty slice, never an error that would abort scoring.
type SignalAnalyzer interface {
	Analyze(ctx context.Context, claim *Claim) []Signal
}

// FieldMap is a flat map of field names to extracted values.
type FieldMap map[string]any

// DocumentExtractor pulls structured claim fields out of an uploaded
// document. A failed extraction is reported through the error return and
// callers degrade to "no extracted fields"; it never blocks an upload.
type DocumentExtractor interface {
	Extract(ctx context.Context, content []byte, contentType, filename string) (FieldMap, error)
}
