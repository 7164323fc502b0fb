package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/bucketshare/bucketshare-backend/pkg/config"
	"github.com/bucketshare/bucketshare-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", ModeTest, ModeLive)
)

// Client holds the process-wide Stripe settings: the API key installed on the
// SDK, the webhook signing secret and the Connect onboarding URLs.
type Client struct {
	mode          Mode
	signingSecret string
	returnURL     string
	refreshURL    string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := Mode(cfg.Environment())
	if mode != ModeTest && mode != ModeLive {
		return nil, errInvalidStripeEnv
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if keyMode(apiKey) != mode {
		return nil, fmt.Errorf("stripe environment %q needs a %s secret or restricted key", mode, mode)
	}

	// the SDK resources used by the payments gateway read these globals
	stripe.Key = apiKey
	if logg != nil {
		stripe.DefaultLeveledLogger = sdkLogger{ctx: ctx, logg: logg}
	}
	logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")

	return &Client{
		mode:          mode,
		signingSecret: secret,
		returnURL:     strings.TrimSpace(cfg.ConnectReturn),
		refreshURL:    strings.TrimSpace(cfg.ConnectReauth),
	}, nil
}

// keyMode reads the mode out of an sk_/rk_ key prefix.
func keyMode(key string) Mode {
	for _, prefix := range []string{"sk_", "rk_"} {
		if rest, ok := strings.CutPrefix(key, prefix); ok {
			switch {
			case strings.HasPrefix(rest, "test_"):
				return ModeTest
			case strings.HasPrefix(rest, "live_"):
				return ModeLive
			}
		}
	}
	return ""
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

// ConnectURLs returns the return and refresh URLs for payout onboarding links.
func (c *Client) ConnectURLs() (string, string) {
	if c == nil {
		return "", ""
	}
	return c.returnURL, c.refreshURL
}

// sdkLogger routes the SDK's own request logging into zerolog.
type sdkLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l sdkLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe.sdk", fmt.Errorf(format, v...))
}
