package devbackend

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Signer is an interface for signing and verifying JWT tokens
type Signer interface {
	Sign(claims jwt.MapClaims) (string, error)
	GetVerificationKey(token *jwt.Token) (any, error)
	GetSigningMethod() jwt.SigningMethod
}

// HMACsigner implements Signer using symmetric HMAC-SHA256
type HMACsigner struct {
	secret []byte
}

var _ Signer = (*HMACsigner)(nil)

func NewHMACSigner(secret string) *HMACsigner {
	return &HMACsigner{secret: []byte(secret)}
}

func (h *HMACsigner) Sign(claims jwt.MapClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token with HMAC")
	}
	return signedToken, nil
}

func (h *HMACsigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACsigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// AccessTokens issues and verifies the short-lived JWT access tokens.
type AccessTokens struct {
	signer  Signer
	expiry  time.Duration
	nowFunc func() time.Time
}

func NewAccessTokens(signer Signer, expiry time.Duration, now func() time.Time) *AccessTokens {
	return &AccessTokens{signer: signer, expiry: expiry, nowFunc: now}
}

func (a *AccessTokens) Issue(user *User) (string, error) {
	now := a.nowFunc()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(a.expiry).Unix(),
		"jti": uuid.New().String(),
	}
	if user.TelegramID != nil {
		claims["telegram_id"] = strconv.FormatInt(*user.TelegramID, 10)
	}
	if user.VKID != nil {
		claims["vk_id"] = strconv.FormatInt(*user.VKID, 10)
	}
	return a.signer.Sign(claims)
}

// Verify checks signature and expiry and returns the subject.
func (a *AccessTokens) Verify(tokenStr string) (string, error) {
	parsed, err := jwt.Parse(tokenStr, a.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{a.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(a.nowFunc),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", errors.Wrap(err, "[AccessTokens.Verify]")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("[AccessTokens.Verify] token has no subject")
	}
	return sub, nil
}
