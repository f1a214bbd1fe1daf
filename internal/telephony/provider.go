package telephony

import (
	"context"
	"io"
)

// Provider is the provider-agnostic interface for call-control actions taken
// outside the webhook request/response cycle.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Webhook handlers treat provider failures as logged, non-fatal events;
//   the platform is always acknowledged.
type Provider interface {
	Name() string

	// CompleteCall asks the platform to terminate a leg immediately.
	// Used to cut off a child leg once AMD classifies it as a machine.
	CompleteCall(ctx context.Context, callID string) error

	// FetchRecording streams platform-stored call audio. The returned string
	// is the content type.
	FetchRecording(ctx context.Context, recordingRef string) (io.ReadCloser, string, error)
}
