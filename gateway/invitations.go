package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// InvitationTTL is the validity window of an invitation. A payload
// older than this at receipt time must be silently dropped by the
// receiving side, never auto-joined.
const InvitationTTL = 15 * time.Second

// ErrInvitationExpired indicates an invitation was received outside
// its validity window.
var ErrInvitationExpired = errors.New("invitation expired")

// InvitationPayload is the out-of-band call invitation delivered to
// the target user through the push transport. The core constructs and
// validates it but never stores it.
type InvitationPayload struct {
	ChannelID   string `json:"channelId"`
	Token       string `json:"token"`
	AssignedUID uint32 `json:"assignedUid"`
	SenderID    string `json:"senderId"`
	ReceiverID  string `json:"receiverId"`
	IssuedAtMs  int64  `json:"issuedAtMs"`
}

// Expired reports whether the invitation is outside its validity
// window at the given time.
func (p InvitationPayload) Expired(now time.Time) bool {
	issued := time.UnixMilli(p.IssuedAtMs)
	return now.Sub(issued) > InvitationTTL
}

// InvitationClient dispatches call invitations over HTTP. Delivery is
// best-effort: callers log failures and never block a session on them,
// so the client performs no retries (a duplicate invitation is worse
// than a lost one).
type InvitationClient struct {
	http *resty.Client
}

// NewInvitationClient creates a client for the invitation gateway at
// baseURL, authenticating with the given bearer token. A non-positive
// timeout falls back to DefaultTimeout.
func NewInvitationClient(baseURL, authToken string, timeout time.Duration) *InvitationClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(authToken)

	logrus.WithFields(logrus.Fields{
		"function": "NewInvitationClient",
		"base_url": baseURL,
		"timeout":  timeout,
	}).Debug("Invitation gateway client created")

	return &InvitationClient{http: client}
}

// invitationRequest is the POST /invitations body.
type invitationRequest struct {
	ChannelID   string `json:"channelId"`
	ReceiverID  string `json:"receiverId"`
	SenderID    string `json:"senderId"`
	TimestampMs int64  `json:"timestampMs"`
}

// Notify asks the gateway to deliver a call invitation to receiverID.
// Each request carries a generated request id for delivery tracing.
func (c *InvitationClient) Notify(ctx context.Context, channelID, receiverID, senderID string, timestampMs int64) error {
	requestID := uuid.NewString()

	logrus.WithFields(logrus.Fields{
		"function":    "Notify",
		"channel_id":  channelID,
		"receiver_id": receiverID,
		"request_id":  requestID,
	}).Info("Dispatching call invitation")

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", requestID).
		SetBody(invitationRequest{
			ChannelID:   channelID,
			ReceiverID:  receiverID,
			SenderID:    senderID,
			TimestampMs: timestampMs,
		}).
		Post("/invitations")
	if err != nil {
		return fmt.Errorf("invitation dispatch failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("invitation gateway returned status %d", resp.StatusCode())
	}

	logrus.WithFields(logrus.Fields{
		"function":    "Notify",
		"receiver_id": receiverID,
		"request_id":  requestID,
	}).Debug("Call invitation accepted by gateway")

	return nil
}
