// Package session mints the scoped credentials operators use to join
// the live realtime session of a claimed call. Tokens follow the
// LiveKit access-token format: an HS256 JWT carrying a video grant
// scoped to exactly one room, with a short bounded lifetime.
package session

import (
	"time"

	"handoff_backend/platform/apperr"
	"handoff_backend/platform/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// operatorIdentityPrefix marks operator participants. The voice agent
// watches for this prefix to mute itself when a human joins the room.
const operatorIdentityPrefix = "human_operator_"

const msgNotConfigured = "session credential issuer is not configured"

// VideoGrant is the capability set embedded in the credential. The
// operator may publish and subscribe to audio and send data messages in
// the named room, and nothing else.
type VideoGrant struct {
	Room           string `json:"room"`
	RoomJoin       bool   `json:"roomJoin"`
	CanPublish     bool   `json:"canPublish"`
	CanSubscribe   bool   `json:"canSubscribe"`
	CanPublishData bool   `json:"canPublishData"`
}

type grantClaims struct {
	jwt.RegisteredClaims
	Video VideoGrant `json:"video"`
}

// Credential is a minted, time-boxed authorization for one operator
// identity to join one session.
type Credential struct {
	Token     string
	Identity  string
	ServerURL string
	ExpiresAt time.Time
}

// Issuer signs session credentials with the platform API key pair.
type Issuer struct {
	cfg config.IssuerConfig
	now func() time.Time
}

// New creates a credential issuer. Missing signing configuration is not
// fatal here; Mint reports it per-request so the rest of the process
// keeps serving.
func New(cfg config.IssuerConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// Configured reports whether the signing credentials and endpoint are present.
func (i *Issuer) Configured() bool {
	return i.cfg.GetSessionServerURL() != "" &&
		i.cfg.GetSessionAPIKey() != "" &&
		i.cfg.GetSessionAPISecret() != ""
}

// NewOperatorIdentity synthesizes a fresh operator identity. Identities
// are never reused, so the same human claiming twice cannot collide
// with their earlier session participant.
func NewOperatorIdentity() string {
	return operatorIdentityPrefix + uuid.NewString()
}

// Mint signs a credential for the given operator identity scoped to the
// given room. Returns apperr.Unavailable when the issuer is not
// configured or signing fails; callers must treat that as "claim not
// consumed".
func (i *Issuer) Mint(identity, room string) (Credential, error) {
	if !i.Configured() {
		return Credential{}, apperr.Unavailable(msgNotConfigured)
	}

	now := i.now()
	expiresAt := now.Add(i.cfg.GetCredentialTTL())

	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.GetSessionAPIKey(),
			Subject:   identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Video: VideoGrant{
			Room:           room,
			RoomJoin:       true,
			CanPublish:     true,
			CanSubscribe:   true,
			CanPublishData: true,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(i.cfg.GetSessionAPISecret()))
	if err != nil {
		return Credential{}, apperr.Wrap(apperr.KindUnavailable, "credential signing failed", err)
	}

	return Credential{
		Token:     token,
		Identity:  identity,
		ServerURL: i.cfg.GetSessionServerURL(),
		ExpiresAt: expiresAt,
	}, nil
}
