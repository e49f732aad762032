package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer はセッショントークンの発行者。
const Issuer = "edgegate"

// DefaultTTL はセッショントークンの有効期間の既定値（30日）。
const DefaultTTL = 30 * 24 * time.Hour

// ErrInvalidToken はセッショントークンが改ざん、失効、または不正な形式であることを表す。
var ErrInvalidToken = errors.New("invalid session token")

// claims はセッショントークンのクレーム。
type claims struct {
	jwt.RegisteredClaims
	// Session はセッション全体。
	Session Session `json:"session"`
}

// Codec はセッションをHS256で署名したJWTに変換する。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec は新しいCodecを生成する。ttlが0以下の場合はDefaultTTLを使う。
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL はセッショントークンの有効期間を返す。
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Encode はセッションを署名済みトークンに変換する。
func (c *Codec) Encode(s Session) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.ID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Session: s,
	})
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Decode は署名済みトークンを検証してセッションを復元する。
// 検証に失敗した場合は ErrInvalidToken を返す。
func (c *Codec) Decode(tokenString string) (Session, error) {
	cl := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, cl, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || cl.Session.ID == "" || cl.Session.ID != cl.Subject {
		return Session{}, ErrInvalidToken
	}
	return cl.Session, nil
}
