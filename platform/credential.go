package platform

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

// MinInitDataLength is the shortest Telegram init data string treated as real.
const MinInitDataLength = 20

// ValidTelegramInitData reports whether initData looks like a real Telegram payload.
func ValidTelegramInitData(initData string) bool {
	if len(initData) < MinInitDataLength {
		return false
	}
	return strings.Contains(initData, "user=") || strings.Contains(initData, "hash=")
}

// TelegramUserID extracts the Telegram user id from init data without verifying it.
// Returns "" when absent.
func TelegramUserID(initData string) string {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return ""
	}
	raw := values.Get("user")
	if raw == "" {
		return ""
	}
	var user struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == 0 {
		return ""
	}
	return strconv.FormatInt(user.ID, 10)
}

// ValidVKLaunchParams reports whether params is a non-empty launch query string.
func ValidVKLaunchParams(params string) bool {
	return strings.TrimPrefix(strings.TrimSpace(params), "?") != ""
}

// VKUserID extracts vk_user_id from launch params. Returns "" when absent.
func VKUserID(params string) string {
	values, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(params), "?"))
	if err != nil {
		return ""
	}
	return values.Get("vk_user_id")
}

// ReadTelegramInitData reads init data from env. Errors and panics read as "".
func ReadTelegramInitData(env Environment) string {
	return safeRead(env.TelegramInitData)
}

// ReadVKLaunchParams reads launch params from env. Errors and panics read as "".
func ReadVKLaunchParams(env Environment) string {
	return safeRead(env.VKLaunchParams)
}

func safeRead(read func() (string, error)) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = ""
		}
	}()
	v, err := read()
	if err != nil {
		return ""
	}
	return v
}
