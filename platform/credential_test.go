package platform_test

import (
	"net/url"
	"testing"

	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/stretchr/testify/require"
)

func TestTelegramInitData(t *testing.T) {
	initData := url.Values{
		"user":      {`{"id":424242,"first_name":"Ann"}`},
		"auth_date": {"1700000000"},
		"hash":      {"abcdef"},
	}.Encode()

	require.True(t, platform.ValidTelegramInitData(initData))
	require.Equal(t, "424242", platform.TelegramUserID(initData))

	require.False(t, platform.ValidTelegramInitData(""))
	require.False(t, platform.ValidTelegramInitData("hash=1"))
	require.False(t, platform.ValidTelegramInitData("query_id=AAAAAAAAAAAAAAAAAAAAAAAA"))
	require.Equal(t, "", platform.TelegramUserID("auth_date=1"))
	require.Equal(t, "", platform.TelegramUserID("user=%7Bbroken"))
}

func TestVKLaunchParams(t *testing.T) {
	require.True(t, platform.ValidVKLaunchParams("?vk_user_id=7&sign=x"))
	require.False(t, platform.ValidVKLaunchParams("?"))
	require.False(t, platform.ValidVKLaunchParams("  "))
	require.Equal(t, "7", platform.VKUserID("?vk_user_id=7&sign=x"))
	require.Equal(t, "", platform.VKUserID("vk_app_id=51"))
}

func TestStaticEnvironment_VKLaunchParamsFromQuery(t *testing.T) {
	env := platform.NewStaticEnvironment("https://app.example.com/?vk_user_id=7&vk_app_id=51&sign=s")
	params, err := env.VKLaunchParams()
	require.NoError(t, err)
	require.Equal(t, "7", platform.VKUserID(params))

	env.SetVKLaunchParams("vk_user_id=9")
	params, err = env.VKLaunchParams()
	require.NoError(t, err)
	require.Equal(t, "vk_user_id=9", params)

	empty := platform.NewStaticEnvironment("https://app.example.com/")
	params, err = empty.VKLaunchParams()
	require.NoError(t, err)
	require.Empty(t, params)
}
