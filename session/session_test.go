package session_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-miniapp-session/apiclient"
	"github.com/jrsteele09/go-miniapp-session/auth"
	"github.com/jrsteele09/go-miniapp-session/devbackend"
	backendfake "github.com/jrsteele09/go-miniapp-session/devbackend/repofake"
	"github.com/jrsteele09/go-miniapp-session/internal/errors"
	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/jrsteele09/go-miniapp-session/session"
	"github.com/jrsteele09/go-miniapp-session/storage"
	"github.com/jrsteele09/go-miniapp-session/storage/repofake"
	"github.com/jrsteele09/go-miniapp-session/storage/telegramcloud"
	"github.com/jrsteele09/go-miniapp-session/storage/vkbridge"
)

const botToken = "123456:TEST-BOT-TOKEN"

type backendConfig struct{}

func (backendConfig) GetPort() string                      { return ":0" }
func (backendConfig) GetTelegramBotToken() string          { return botToken }
func (backendConfig) GetVKAppSecret() string               { return "vk-app-secret" }
func (backendConfig) GetTokenSecret() string               { return "test-secret" }
func (backendConfig) GetAccessTokenExpiry() time.Duration  { return 15 * time.Minute }
func (backendConfig) GetRefreshTokenExpiry() time.Duration { return 24 * time.Hour }
func (backendConfig) GetInitDataMaxAge() time.Duration     { return time.Hour }
func (backendConfig) GetAllowedOrigins() []string          { return []string{"https://web.telegram.org"} }

type sessionConfig struct{ baseURL string }

func (c sessionConfig) GetBaseURL() string                      { return c.baseURL }
func (c sessionConfig) GetRequestTimeout() time.Duration        { return 2 * time.Second }
func (c sessionConfig) GetTokenReadTimeout() time.Duration      { return 100 * time.Millisecond }
func (c sessionConfig) GetTelegramCredentialWait() time.Duration { return time.Second }
func (c sessionConfig) GetVKRetryDelay() time.Duration          { return 50 * time.Millisecond }
func (c sessionConfig) GetPollInterval() time.Duration          { return 10 * time.Millisecond }
func (c sessionConfig) GetDurableWriteWait() time.Duration      { return time.Second }
func (c sessionConfig) GetLoginPath() string                    { return "/login" }
func (c sessionConfig) GetRegisterPath() string                 { return "/register" }
func (c sessionConfig) GetHomePath() string                     { return "/" }

type pathCounter struct {
	next http.Handler

	mu    sync.Mutex
	calls map[string]int
}

func (h *pathCounter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls[r.URL.Path]++
	h.mu.Unlock()
	h.next.ServeHTTP(w, r)
}

func (h *pathCounter) count(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[path]
}

type testFixture struct {
	api      *pathCounter
	cfg      sessionConfig
	web      *repofake.FakeBackend
	cloud    *repofake.FakeCloudStorage
	bridge   *repofake.FakeBridge
	backends storage.Backends
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	api := &pathCounter{
		next:  devbackend.New(backendConfig{}, backendfake.NewFakeUserRepo(), backendfake.NewFakeRefreshTokenRepo()),
		calls: make(map[string]int),
	}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	f := &testFixture{
		api:    api,
		cfg:    sessionConfig{baseURL: server.URL},
		web:    repofake.NewFakeBackend("local"),
		cloud:  repofake.NewFakeCloudStorage(),
		bridge: repofake.NewFakeBridge(),
	}
	f.backends = storage.Backends{
		Web:      f.web,
		Telegram: telegramcloud.New(f.cloud),
		VK:       vkbridge.New(f.bridge),
	}
	return f
}

func (f *testFixture) start(t *testing.T, env platform.Environment, options ...session.Option) (*session.Session, auth.Result) {
	t.Helper()
	s := session.New(f.cfg, env, f.backends, options...)
	t.Cleanup(s.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := s.Start(ctx)
	require.NoError(t, err)
	return s, res
}

func telegramEnv(userID int64) *platform.StaticEnvironment {
	env := platform.NewStaticEnvironment("https://app.example.com/")
	env.SetGlobal(platform.GlobalTelegramWebApp, true)
	env.SetTelegramInitData(devbackend.SignTelegramInitData(url.Values{
		"user":      {`{"id":` + strconv.FormatInt(userID, 10) + `}`},
		"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)},
	}, botToken))
	return env
}

func TestSession_WebLoginLogout(t *testing.T) {
	f := setupTestFixture(t)
	s, res := f.start(t, platform.NewStaticEnvironment("https://app.example.com/login"))
	require.Equal(t, platform.Web, s.Platform())
	require.Equal(t, auth.StateSkipped, res.State)

	ctx := context.Background()
	_, err := s.Register(ctx, apiclient.RegisterRequest{Email: "web@example.com", Password: "Password123"})
	require.NoError(t, err)

	user, err := s.Login(ctx, "web@example.com", "Password123")
	require.NoError(t, err)
	require.Equal(t, "web@example.com", user.Email)

	v, ok := f.web.Peek(storage.KeyToken)
	require.True(t, ok)
	require.Equal(t, s.Client().Tokens().AccessToken(), v)

	me, err := s.CurrentUser(ctx)
	require.NoError(t, err)
	require.Equal(t, user.ID, me.ID)

	require.NoError(t, s.Logout(ctx))
	require.NoError(t, s.Logout(ctx))
	_, ok = f.web.Peek(storage.KeyToken)
	require.False(t, ok)
	_, ok = f.web.Peek(storage.KeyRefreshToken)
	require.False(t, ok)

	_, err = s.Login(ctx, "web@example.com", "wrong")
	require.True(t, errors.Is(err, errors.ErrAuthInvalid))
	require.Equal(t, "Wrong email or password.", apiclient.Translate(err))
}

func TestSession_WebRelaunchValidatesStoredToken(t *testing.T) {
	f := setupTestFixture(t)
	env := platform.NewStaticEnvironment("https://app.example.com/")

	first, _ := f.start(t, env)
	_, err := first.Register(context.Background(), apiclient.RegisterRequest{Email: "web@example.com", Password: "Password123"})
	require.NoError(t, err)
	first.Close()

	_, res := f.start(t, env)
	require.Equal(t, auth.StateSkipped, res.State)
	require.NotNil(t, res.User)
	require.Equal(t, "web@example.com", res.User.Email)
}

func TestSession_TelegramLaunchAndRelaunch(t *testing.T) {
	f := setupTestFixture(t)
	nav := auth.NewMemoryNavigator("/login")

	s, res := f.start(t, telegramEnv(1001), session.WithNavigator(nav))
	require.Equal(t, platform.Telegram, s.Platform())
	require.Equal(t, auth.StateSuccess, res.State)
	require.Equal(t, "/", nav.CurrentPath())
	require.Equal(t, auth.StateSkipped, s.States()[platform.VK])

	v, ok := f.cloud.Peek(storage.KeyToken)
	require.True(t, ok, "tokens live in Telegram cloud storage")
	require.NotEmpty(t, v)
	_, ok = f.web.Peek(storage.KeyToken)
	require.False(t, ok, "only the platform backend is written")
	s.Close()

	_, res = f.start(t, telegramEnv(1001))
	require.Equal(t, auth.StateSkipped, res.State, "stored token belongs to this telegram user")
	require.Equal(t, 1, f.api.count(devbackend.RouteTelegram))
}

func TestSession_TelegramRelaunchAsAnotherUser(t *testing.T) {
	f := setupTestFixture(t)

	first, res := f.start(t, telegramEnv(1001))
	require.Equal(t, auth.StateSuccess, res.State)
	first.Close()

	_, res = f.start(t, telegramEnv(2002))
	require.Equal(t, auth.StateSuccess, res.State)
	require.Equal(t, int64(2002), *res.User.TelegramID)
	require.Equal(t, 2, f.api.count(devbackend.RouteTelegram))

	require.Eventually(t, func() bool {
		v, _ := f.cloud.Peek(storage.KeyPlatformUserID)
		return v == "2002"
	}, time.Second, 10*time.Millisecond)
}

func TestSession_VKSoftFailure(t *testing.T) {
	f := setupTestFixture(t)
	env := platform.NewStaticEnvironment("https://app.example.com/")
	env.SetReferrer("https://vk.com/app51234567")
	nav := auth.NewMemoryNavigator("/")

	s, res := f.start(t, env, session.WithNavigator(nav))
	require.Equal(t, platform.VK, s.Platform())
	require.Equal(t, auth.StateFailed, res.State)
	require.True(t, res.Soft)
	require.Empty(t, nav.History())
	require.Zero(t, f.api.count(devbackend.RouteVK))
}

func TestSession_Lifecycle(t *testing.T) {
	f := setupTestFixture(t)

	s := session.New(f.cfg, platform.NewStaticEnvironment("https://app.example.com/"), f.backends)
	_, err := s.Login(context.Background(), "a@example.com", "Password123")
	require.ErrorIs(t, err, session.ErrNotStarted)
	require.ErrorIs(t, s.Logout(context.Background()), session.ErrNotStarted)
	require.Nil(t, s.Client())

	_, err = s.Start(context.Background())
	require.NoError(t, err)
	_, err = s.Start(context.Background())
	require.ErrorIs(t, err, session.ErrStarted)
	s.Close()
	s.Close()
}

func TestSession_NoBackendForPlatform(t *testing.T) {
	f := setupTestFixture(t)
	f.backends.Telegram = nil

	s := session.New(f.cfg, telegramEnv(1001), f.backends)
	_, err := s.Start(context.Background())
	require.True(t, errors.Is(err, errors.ErrNoBackend))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) lines(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(b.buf.Bytes()))
	for sc.Scan() {
		line := map[string]any{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		out = append(out, line)
	}
	return out
}

func TestSession_LoginLogsCarryPlatform(t *testing.T) {
	f := setupTestFixture(t)
	buf := &syncBuffer{}

	_, res := f.start(t, telegramEnv(1001), session.WithLogger(zerolog.New(buf).Level(zerolog.DebugLevel)))
	require.Equal(t, auth.StateSuccess, res.State)

	var found bool
	for _, line := range buf.lines(t) {
		if line["message"] != "platform login succeeded" {
			continue
		}
		found = true
		require.Equal(t, "telegram", line["platform"])
		require.Equal(t, "telegram", line["orchestrator"])
	}
	require.True(t, found)
}
