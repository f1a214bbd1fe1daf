package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dialdesk/internal/config"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioProvider implements Provider against the Twilio REST API.
type TwilioProvider struct {
	client     *twilio.RestClient
	accountSID string
	authToken  string

	// httpClient is used for recording media fetches, which the SDK does not
	// expose as a streaming call.
	httpClient *http.Client
}

func NewTwilioProvider(cfg config.TwilioConfig) *TwilioProvider {
	return &TwilioProvider{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) CompleteCall(ctx context.Context, callID string) error {
	params := &twilioapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := p.client.Api.UpdateCall(callID, params); err != nil {
		return fmt.Errorf("telephony: complete call %s: %w", callID, err)
	}
	return nil
}

func (p *TwilioProvider) FetchRecording(ctx context.Context, recordingRef string) (io.ReadCloser, string, error) {
	url := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Recordings/%s.mp3",
		p.accountSID, recordingRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	req.SetBasicAuth(p.accountSID, p.authToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("telephony: fetch recording: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, "", fmt.Errorf("telephony: recording fetch returned %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return resp.Body, contentType, nil
}
