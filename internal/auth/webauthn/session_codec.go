package webauthn

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"

	gowebauthn "github.com/go-webauthn/webauthn/webauthn"
)

// sessionCodec round-trips ceremony session data through the client as an
// HMAC-signed opaque string. The browser carries it in a short-lived cookie
// between the begin and finish steps; the signature stops tampering with the
// challenge or the allowed credential list.
type sessionCodec struct {
	secret []byte
}

func (c sessionCodec) Encode(session *gowebauthn.SessionData) (string, error) {
	payload, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(payload) + "." + c.sign(payload), nil
}

func (c sessionCodec) Decode(raw string) (*gowebauthn.SessionData, error) {
	body, sig, ok := strings.Cut(raw, ".")
	if !ok {
		return nil, ErrChallengeMismatch
	}
	payload, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return nil, ErrChallengeMismatch
	}
	if !hmac.Equal([]byte(c.sign(payload)), []byte(sig)) {
		return nil, ErrChallengeMismatch
	}
	var session gowebauthn.SessionData
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, ErrChallengeMismatch
	}
	return &session, nil
}

func (c sessionCodec) sign(payload []byte) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
