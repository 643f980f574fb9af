package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the send/receive timeout for gateway requests.
const DefaultTimeout = 10 * time.Second

// ErrCredential indicates the credential gateway could not issue a
// usable channel credential. It is fatal to the call attempt.
var ErrCredential = errors.New("credential acquisition failed")

// Credentials is a short-lived channel join grant issued by the
// credential gateway.
type Credentials struct {
	Token     string
	ChannelID string
	UID       uint32
}

// CredentialClient fetches channel credentials over HTTP.
type CredentialClient struct {
	http *resty.Client
}

// NewCredentialClient creates a client for the credential gateway at
// baseURL. A non-positive timeout falls back to DefaultTimeout. One
// retry is attempted on transport-level failures only; HTTP-level
// rejections are not retried here (the gateway owns that policy).
func NewCredentialClient(baseURL string, timeout time.Duration) *CredentialClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(1).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil
		})

	logrus.WithFields(logrus.Fields{
		"function": "NewCredentialClient",
		"base_url": baseURL,
		"timeout":  timeout,
	}).Debug("Credential gateway client created")

	return &CredentialClient{http: client}
}

// credentialRequest is the POST /credentials body.
type credentialRequest struct {
	AccountID string `json:"accountId"`
}

// credentialResponse is the gateway's success payload. The uid field
// may arrive as a number or a numeric string.
type credentialResponse struct {
	Token     string      `json:"token"`
	UID       json.Number `json:"uid"`
	ChannelID string      `json:"channelId"`
}

// Fetch requests a channel credential for the given account. Any
// non-200 response, timeout, or malformed payload is reported as a
// wrapped ErrCredential.
func (c *CredentialClient) Fetch(ctx context.Context, accountID string) (Credentials, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "Fetch",
		"account_id": accountID,
	}).Info("Fetching channel credentials")

	var body credentialResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(credentialRequest{AccountID: accountID}).
		SetResult(&body).
		Post("/credentials")
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Fetch",
			"error":    err.Error(),
		}).Error("Credential request failed")
		return Credentials{}, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	if resp.StatusCode() != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"function":    "Fetch",
			"status_code": resp.StatusCode(),
		}).Error("Credential gateway returned non-200 status")
		return Credentials{}, fmt.Errorf("%w: unexpected status %d", ErrCredential, resp.StatusCode())
	}

	creds, err := body.validate()
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Fetch",
			"error":    err.Error(),
		}).Error("Credential payload rejected")
		return Credentials{}, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Fetch",
		"channel_id": creds.ChannelID,
		"uid":        creds.UID,
	}).Info("Channel credentials issued")

	return creds, nil
}

// validate checks the response for missing fields and parses the uid,
// which may be a numeric string, rejecting non-positive values.
func (r credentialResponse) validate() (Credentials, error) {
	if r.Token == "" {
		return Credentials{}, errors.New("missing token")
	}
	if r.ChannelID == "" {
		return Credentials{}, errors.New("missing channelId")
	}
	if r.UID == "" {
		return Credentials{}, errors.New("missing uid")
	}

	uid, err := r.UID.Int64()
	if err != nil {
		return Credentials{}, fmt.Errorf("malformed uid %q: %v", r.UID.String(), err)
	}
	if uid <= 0 || uid > math.MaxUint32 {
		return Credentials{}, fmt.Errorf("uid %d out of range", uid)
	}

	return Credentials{
		Token:     r.Token,
		ChannelID: r.ChannelID,
		UID:       uint32(uid),
	}, nil
}
