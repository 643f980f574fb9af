// Package gateway implements the HTTP clients for the two external
// collaborators of the call core: the credential gateway issuing
// short-lived channel join tokens, and the invitation gateway
// delivering out-of-band call invitations.
//
// Both clients are thin request/response contracts. Credential
// acquisition is fatal to a call attempt when it fails; invitation
// delivery is best-effort and its failures are only logged by the
// caller. Neither client holds session state.
package gateway
