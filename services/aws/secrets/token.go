package secrets

import (
	"encoding/json"
	"fmt"
	"time"
)

// Token is a credential pair read from a secret. SessionToken and Expiration
// are set only for temporary tokens.
type Token struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiration      time.Time
}

// Temporary reports whether the token carries a session token.
func (t *Token) Temporary() bool {
	return t.SessionToken != ""
}

type tokenJSON struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      int64  `json:"expiration"`
}

// ParseToken decodes a credential token. Temporary tokens must carry an
// expiration; long-lived key pairs must not carry a session token.
func ParseToken(raw []byte) (*Token, error) {
	var tj tokenJSON
	if err := json.Unmarshal(raw, &tj); err != nil {
		// The JSON error may quote the secret; drop it.
		return nil, ErrMalformedToken
	}
	if tj.AccessKeyID == "" || tj.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: accessKeyId and secretAccessKey are required", ErrMalformedToken)
	}

	tok := &Token{
		AccessKeyID:     tj.AccessKeyID,
		SecretAccessKey: tj.SecretAccessKey,
		SessionToken:    tj.SessionToken,
	}
	if tj.SessionToken != "" {
		if tj.Expiration <= 0 {
			return nil, fmt.Errorf("%w: temporary token without expiration", ErrMalformedToken)
		}
		tok.Expiration = time.UnixMilli(tj.Expiration).UTC()
	}
	return tok, nil
}
