package platform

import (
	"strings"
)

// Platform identifies the embedding surface the app is running under.
type Platform int

const (
	Web Platform = iota
	Telegram
	VK
)

func (p Platform) String() string {
	switch p {
	case Telegram:
		return "telegram"
	case VK:
		return "vk"
	default:
		return "web"
	}
}

// ParsePlatform maps a name back to a Platform. Unknown names are Web.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "telegram", "tg":
		return Telegram
	case "vk":
		return VK
	default:
		return Web
	}
}
