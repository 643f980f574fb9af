package call

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config carries the call core's policy knobs and collaborator
// endpoints. The timer constants are hand-tuned policy, not derived
// values; the defaults below are authoritative.
type Config struct {
	// AppID is the application credential for the media engine.
	AppID string `envconfig:"CALL_APP_ID"`
	// AccountID identifies the local user towards the gateways.
	AccountID string `envconfig:"CALL_ACCOUNT_ID"`

	// CredentialURL is the base URL of the credential gateway.
	CredentialURL string `envconfig:"CALL_CREDENTIAL_URL"`
	// InvitationURL is the base URL of the invitation gateway.
	InvitationURL string `envconfig:"CALL_INVITATION_URL"`
	// InvitationAuthToken is the bearer token for invitation dispatch.
	InvitationAuthToken string `envconfig:"CALL_INVITATION_AUTH_TOKEN"`

	// GatewayTimeout bounds each gateway request.
	GatewayTimeout time.Duration `envconfig:"CALL_GATEWAY_TIMEOUT" default:"10s"`
	// RendezvousTimeout bounds the wait for the remote peer after
	// joining the channel.
	RendezvousTimeout time.Duration `envconfig:"CALL_RENDEZVOUS_TIMEOUT" default:"30s"`
	// RendezvousPoll is the defensive re-check cadence during the
	// rendezvous wait, independent of the event stream.
	RendezvousPoll time.Duration `envconfig:"CALL_RENDEZVOUS_POLL" default:"3s"`
	// AdaptInterval is the periodic encoder re-tuning cadence while a
	// channel is joined.
	AdaptInterval time.Duration `envconfig:"CALL_ADAPT_INTERVAL" default:"5s"`
	// LossEscalationPct is the packet-loss percentage above which the
	// loss-escalation profile is applied.
	LossEscalationPct float64 `envconfig:"CALL_LOSS_ESCALATION_PCT" default:"15"`
}

// DefaultConfig returns the authoritative policy defaults with empty
// endpoints.
func DefaultConfig() Config {
	return Config{
		GatewayTimeout:    10 * time.Second,
		RendezvousTimeout: 30 * time.Second,
		RendezvousPoll:    3 * time.Second,
		AdaptInterval:     5 * time.Second,
		LossEscalationPct: 15,
	}
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
