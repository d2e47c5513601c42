package platform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
)

var (
	vkURLMarkers       = []string{"vk_app_id", "vk_user_id"}
	telegramURLMarkers = []string{"tgWebAppData", "tgWebAppStartParam", "tgWebAppPlatform", "tgWebAppVersion"}
	vkReferrerHosts    = []string{"vk.com", "vk.ru"}
)

// Detector decides which platform owns the current page context.
type Detector struct {
	env   Environment
	flags SessionFlags
	log   zerolog.Logger
}

type DetectorOption func(*Detector)

func WithDetectorLogger(log zerolog.Logger) DetectorOption {
	return func(d *Detector) {
		d.log = log
	}
}

func NewDetector(env Environment, flags SessionFlags, options ...DetectorOption) *Detector {
	if flags == nil {
		flags = NewMemoryFlags()
	}
	d := &Detector{env: env, flags: flags, log: zerolog.Nop()}
	for _, opt := range options {
		opt(d)
	}
	return d
}

// Detect resolves the platform. VK is checked first and short-circuits everything else
// because a page can carry both SDKs at once. Positive VK detection sticks for the rest of
// the session since client-side routing may strip the URL markers.
func (d *Detector) Detect() Platform {
	if d.detectVK() {
		d.flags.Set(FlagIsVK, "true")
		return VK
	}
	if d.detectTelegram() {
		return Telegram
	}
	return Web
}

// IsVK is the cheap re-check used at suspension points.
func (d *Detector) IsVK() bool {
	return d.Detect() == VK
}

func (d *Detector) IsTelegram() bool {
	return d.Detect() == Telegram
}

func (d *Detector) detectVK() bool {
	u, ok := probe(d, "url", d.env.URL)
	if ok && u != nil && hasAnyParam(u.Query(), vkURLMarkers) {
		return true
	}

	if v, ok := d.flags.Get(FlagIsVK); ok && v == "true" {
		return true
	}

	if present, ok := probe(d, GlobalVKBridge, func() (bool, error) { return d.env.HasGlobal(GlobalVKBridge) }); ok && present {
		return true
	}

	if ref, ok := probe(d, "referrer", d.env.Referrer); ok && isVKReferrer(ref) {
		return true
	}
	return false
}

func (d *Detector) detectTelegram() bool {
	if present, ok := probe(d, GlobalTelegramWebApp, func() (bool, error) { return d.env.HasGlobal(GlobalTelegramWebApp) }); ok && present {
		return true
	}

	u, ok := probe(d, "url", d.env.URL)
	if !ok || u == nil {
		return false
	}
	if hasAnyParam(u.Query(), telegramURLMarkers) {
		return true
	}
	// Telegram passes its launch data in the fragment.
	if fragment, err := url.ParseQuery(u.Fragment); err == nil && hasAnyParam(fragment, telegramURLMarkers) {
		return true
	}
	return false
}

// probe reads one signal. Errors and panics both mean "absent".
func probe[T any](d *Detector, name string, read func() (T, error)) (value T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn().Str("signal", name).Str("panic", fmt.Sprint(r)).Msg("platform signal panicked")
			ok = false
		}
	}()
	v, err := read()
	if err != nil {
		d.log.Debug().Err(err).Str("signal", name).Msg("platform signal unavailable")
		return value, false
	}
	return v, true
}

func hasAnyParam(values url.Values, names []string) bool {
	for _, n := range names {
		if values.Get(n) != "" {
			return true
		}
	}
	return false
}

func isVKReferrer(ref string) bool {
	if ref == "" {
		return false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range vkReferrerHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}
