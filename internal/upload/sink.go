// Package upload pushes validated recordings to cloud storage. The
// daemon only hands over containers the analyzer passed; everything else
// stays local for triage.
package upload

import "context"

// Sink stores a completed recording under a key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error
}

// NopSink discards uploads. Used when no bucket is configured.
type NopSink struct{}

func (NopSink) Put(context.Context, string, []byte) error { return nil }
