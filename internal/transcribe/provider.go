package transcribe

import "context"

// Provider is the interface for speech-to-text backends. Transcribe returns
// the raw response document; its segment layout is resolved downstream.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string) ([]byte, error)
	Name() string // "clova"
}
