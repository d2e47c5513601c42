package platform_test

import (
	"errors"
	"net/url"
	"testing"

	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/stretchr/testify/require"
)

// brokenEnvironment fails or panics on every signal.
type brokenEnvironment struct{ panics bool }

func (b brokenEnvironment) fail() error {
	if b.panics {
		panic("sdk not ready")
	}
	return errors.New("sdk not ready")
}

func (b brokenEnvironment) URL() (*url.URL, error)          { return nil, b.fail() }
func (b brokenEnvironment) Referrer() (string, error)       { return "", b.fail() }
func (b brokenEnvironment) HasGlobal(string) (bool, error)  { return false, b.fail() }
func (b brokenEnvironment) TelegramInitData() (string, error) { return "", b.fail() }
func (b brokenEnvironment) VKLaunchParams() (string, error) { return "", b.fail() }

func TestDetector_Detect(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		referrer string
		globals  []string
		want     platform.Platform
	}{
		{name: "plain web", url: "https://app.example.com/", want: platform.Web},
		{name: "vk app id marker", url: "https://app.example.com/?vk_app_id=51", want: platform.VK},
		{name: "vk user id marker", url: "https://app.example.com/?vk_user_id=7&sign=x", want: platform.VK},
		{name: "vk bridge global", url: "https://app.example.com/", globals: []string{platform.GlobalVKBridge}, want: platform.VK},
		{name: "vk referrer", url: "https://app.example.com/", referrer: "https://m.vk.com/app51", want: platform.VK},
		{name: "telegram global", url: "https://app.example.com/", globals: []string{platform.GlobalTelegramWebApp}, want: platform.Telegram},
		{name: "telegram query marker", url: "https://app.example.com/?tgWebAppStartParam=ref", want: platform.Telegram},
		{name: "telegram fragment marker", url: "https://app.example.com/#tgWebAppData=query_id%3D1&tgWebAppVersion=7.0", want: platform.Telegram},
		{
			name:    "both sdks injected: vk wins",
			url:     "https://app.example.com/",
			globals: []string{platform.GlobalTelegramWebApp, platform.GlobalVKBridge},
			want:    platform.VK,
		},
		{name: "unrelated referrer", url: "https://app.example.com/", referrer: "https://notvk.com/", want: platform.Web},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := platform.NewStaticEnvironment(tt.url)
			env.SetReferrer(tt.referrer)
			for _, g := range tt.globals {
				env.SetGlobal(g, true)
			}
			d := platform.NewDetector(env, platform.NewMemoryFlags())
			require.Equal(t, tt.want, d.Detect())
		})
	}
}

func TestDetector_VKStickyAfterRouteChange(t *testing.T) {
	env := platform.NewStaticEnvironment("https://app.example.com/?vk_user_id=7&vk_app_id=51")
	flags := platform.NewMemoryFlags()
	d := platform.NewDetector(env, flags)

	require.Equal(t, platform.VK, d.Detect())

	// client-side routing drops the query string
	env.SetURL("https://app.example.com/transactions")
	env.SetGlobal(platform.GlobalTelegramWebApp, true)
	require.Equal(t, platform.VK, d.Detect())
	require.True(t, d.IsVK())
	require.False(t, d.IsTelegram())

	v, ok := flags.Get(platform.FlagIsVK)
	require.True(t, ok)
	require.Equal(t, "true", v)
}

func TestDetector_FailingSignalsMeanWeb(t *testing.T) {
	for _, panics := range []bool{false, true} {
		d := platform.NewDetector(brokenEnvironment{panics: panics}, nil)
		require.NotPanics(t, func() {
			require.Equal(t, platform.Web, d.Detect())
		})
	}
}

func TestParsePlatform(t *testing.T) {
	require.Equal(t, platform.Telegram, platform.ParsePlatform("Telegram"))
	require.Equal(t, platform.VK, platform.ParsePlatform(" vk "))
	require.Equal(t, platform.Web, platform.ParsePlatform("browser"))
	require.Equal(t, "telegram", platform.Telegram.String())
	require.Equal(t, "web", platform.Web.String())
}
