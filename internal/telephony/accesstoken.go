package telephony

import (
	"errors"
	"fmt"
	"time"

	"dialdesk/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenIssuer mints the platform access token the browser voice SDK
// registers with. The token is a JWT signed with the API key secret and
// carries a voice grant scoped to one agent identity.
type AccessTokenIssuer struct {
	accountSID  string
	apiKey      string
	apiSecret   string
	twimlAppSID string
	ttl         time.Duration

	now func() time.Time
}

func NewAccessTokenIssuer(cfg config.TwilioConfig) (*AccessTokenIssuer, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("telephony: TWILIO_API_KEY and TWILIO_API_SECRET are required for voice tokens")
	}
	if cfg.TwiMLAppSID == "" {
		return nil, errors.New("telephony: TWILIO_TWIML_APP_SID is required for voice tokens")
	}
	return &AccessTokenIssuer{
		accountSID:  cfg.AccountSID,
		apiKey:      cfg.APIKey,
		apiSecret:   cfg.APISecret,
		twimlAppSID: cfg.TwiMLAppSID,
		ttl:         time.Hour,
		now:         time.Now,
	}, nil
}

// Issue returns a signed voice token for the given browser session identity.
func (i *AccessTokenIssuer) Issue(identity string) (string, error) {
	if identity == "" {
		return "", errors.New("telephony: identity is required")
	}

	now := i.now()
	claims := jwt.MapClaims{
		"jti": fmt.Sprintf("%s-%d", i.apiKey, now.Unix()),
		"iss": i.apiKey,
		"sub": i.accountSID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
		"grants": map[string]any{
			"identity": identity,
			"voice": map[string]any{
				"outgoing": map[string]any{
					"application_sid": i.twimlAppSID,
				},
				"incoming": map[string]any{
					"allow": true,
				},
			},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = "twilio-fpa;v=1"
	token.Header["kid"] = i.apiKey
	return token.SignedString([]byte(i.apiSecret))
}
