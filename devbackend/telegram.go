package devbackend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
)

const telegramSecretKey = "WebAppData"

// TelegramUser is the user object embedded in Mini App init data.
type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// VerifyTelegramInitData checks the init data hash against the bot token and rejects init
// data older than maxAge.
func VerifyTelegramInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*TelegramUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidCredential, "invalid init data")
	}
	hash := values.Get("hash")
	if hash == "" {
		return nil, errors.Wrapf(errors.ErrInvalidCredential, "invalid init data: missing hash")
	}
	values.Del("hash")

	expected := telegramHash(values, botToken)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(hash))) {
		return nil, errors.Wrapf(errors.ErrInvalidCredential, "invalid init data: hash mismatch")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidCredential, "invalid init data: auth_date")
	}
	if maxAge > 0 && now.Sub(time.Unix(authDate, 0)) > maxAge {
		return nil, errors.Wrapf(errors.ErrAuthExpired, "init data expired")
	}

	var user TelegramUser
	if err := json.Unmarshal([]byte(values.Get("user")), &user); err != nil || user.ID == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidCredential, "invalid init data: user")
	}
	return &user, nil
}

// SignTelegramInitData produces init data the way Telegram does, for demos and tests.
func SignTelegramInitData(values url.Values, botToken string) string {
	signed := url.Values{}
	for k, v := range values {
		signed[k] = v
	}
	signed.Del("hash")
	signed.Set("hash", telegramHash(signed, botToken))
	return signed.Encode()
}

func telegramHash(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	secret := hmacSHA256([]byte(telegramSecretKey), []byte(botToken))
	return hex.EncodeToString(hmacSHA256(secret, []byte(strings.Join(lines, "\n"))))
}

func hmacSHA256(key, msg []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	return mac.Sum(nil)
}
