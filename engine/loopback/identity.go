package loopback

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/neuropil-go/engine"
)

const defaultIdentityTTL = 365 * 24 * time.Hour

var errSecretKeySize = errors.New("secret key must be 0, 32 or 64 bytes")

// generateIdentity creates a self-issued identity token. An empty secret
// key generates a fresh key pair; 32 bytes are a seed; 64 bytes a full
// private key.
func generateIdentity(expiresAt time.Time, secretKey []byte) (engine.Token, error) {
	var priv ed25519.PrivateKey
	switch len(secretKey) {
	case 0:
		var err error
		if _, priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
			return engine.Token{}, err
		}
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secretKey)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(append([]byte(nil), secretKey...))
	default:
		return engine.Token{}, errSecretKeySize
	}

	pub := priv.Public().(ed25519.PublicKey)
	fp := fingerprint(pub).String()
	now := time.Now()

	return engine.Token{
		UUID:      uuid.NewString(),
		Issuer:    fp,
		Subject:   "urn:np:id:" + fp,
		IssuedAt:  now,
		NotBefore: now,
		ExpiresAt: expiresAt,
		PublicKey: []byte(pub),
	}, nil
}

func fingerprint(pub []byte) engine.ID {
	return engine.ID(sha256.Sum256(pub))
}

func newMessage(from engine.ID, subject string, data []byte) *engine.Message {
	return &engine.Message{
		UUID:       uuid.NewString(),
		From:       from,
		Subject:    subject,
		ReceivedAt: time.Now(),
		Data:       append([]byte(nil), data...),
	}
}
