package devbackend

import (
	"crypto/hmac"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-miniapp-session/internal/errors"
)

// VerifyVKLaunchParams checks the launch params sign against the app secret and returns
// vk_user_id.
func VerifyVKLaunchParams(launchParams, appSecret string) (int64, error) {
	values, err := url.ParseQuery(strings.TrimPrefix(launchParams, "?"))
	if err != nil {
		return 0, errors.Wrapf(errors.ErrInvalidCredential, "invalid launch params")
	}
	sign := values.Get("sign")
	if sign == "" {
		return 0, errors.Wrapf(errors.ErrInvalidCredential, "invalid launch params: missing sign")
	}
	if !hmac.Equal([]byte(vkSign(values, appSecret)), []byte(sign)) {
		return 0, errors.Wrapf(errors.ErrInvalidCredential, "invalid launch params: sign mismatch")
	}

	id, err := strconv.ParseInt(values.Get("vk_user_id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(errors.ErrInvalidCredential, "invalid launch params: vk_user_id")
	}
	return id, nil
}

// SignVKLaunchParams appends the sign VK would produce, for demos and tests.
func SignVKLaunchParams(values url.Values, appSecret string) string {
	signed := url.Values{}
	for k, v := range values {
		signed[k] = v
	}
	signed.Del("sign")
	signed.Set("sign", vkSign(signed, appSecret))
	return signed.Encode()
}

// vkSign is base64url, unpadded, of HMAC-SHA256 over the sorted vk_* params.
func vkSign(values url.Values, appSecret string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if strings.HasPrefix(k, "vk_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(values.Get(k)))
	}
	return base64.RawURLEncoding.EncodeToString(hmacSHA256([]byte(appSecret), []byte(strings.Join(parts, "&"))))
}
