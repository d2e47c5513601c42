// Command session simulates one app launch against a running backend: flags describe the
// page context, the session runs its automatic login and the outcome is printed.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-miniapp-session/apiclient"
	"github.com/jrsteele09/go-miniapp-session/auth"
	"github.com/jrsteele09/go-miniapp-session/devbackend"
	"github.com/jrsteele09/go-miniapp-session/internal/config"
	"github.com/jrsteele09/go-miniapp-session/internal/logging"
	"github.com/jrsteele09/go-miniapp-session/internal/metrics"
	"github.com/jrsteele09/go-miniapp-session/internal/utils"
	"github.com/jrsteele09/go-miniapp-session/platform"
	"github.com/jrsteele09/go-miniapp-session/session"
	"github.com/jrsteele09/go-miniapp-session/storage"
	"github.com/jrsteele09/go-miniapp-session/storage/localstore"
	"github.com/jrsteele09/go-miniapp-session/storage/redisstore"
	"github.com/jrsteele09/go-miniapp-session/storage/repofake"
	"github.com/jrsteele09/go-miniapp-session/storage/telegramcloud"
	"github.com/jrsteele09/go-miniapp-session/storage/vkbridge"
)

type launch struct {
	configPath    string
	pageURL       string
	path          string
	referrer      string
	telegramUser  int64
	telegramDelay time.Duration
	vkUser        int64
	vkBridge      bool
	email         string
	password      string
}

func main() {
	var l launch
	flag.StringVar(&l.configPath, "config", "", "path to a yaml config file")
	flag.StringVar(&l.pageURL, "url", "https://app.example.com", "page URL the app was opened with")
	flag.StringVar(&l.path, "path", "/", "in-app route the page starts on")
	flag.StringVar(&l.referrer, "referrer", "", "document referrer")
	flag.Int64Var(&l.telegramUser, "telegram-user", 0, "launch inside Telegram as this user id")
	flag.DurationVar(&l.telegramDelay, "telegram-delay", 0, "delay before the Telegram SDK exposes init data")
	flag.Int64Var(&l.vkUser, "vk-user", 0, "launch inside VK as this user id")
	flag.BoolVar(&l.vkBridge, "vk-bridge", false, "expose the VK bridge global without launch params")
	flag.StringVar(&l.email, "email", "", "email for a manual login when no automatic login happens")
	flag.StringVar(&l.password, "password", "", "password for the manual login")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.MustLoad(l.configPath)
	log := logging.New(cfg.GetEnv(), cfg.GetLogLevel())

	figure.NewFigure(cfg.GetAppName(), "cybermedium", true).Print()
	fmt.Println()

	if err := run(cfg, l, log); err != nil {
		log.Error().Err(err).Msg("launch failed")
		os.Exit(1)
	}
}

func run(cfg config.Config, l launch, log zerolog.Logger) error {
	ctx := context.Background()

	env, err := environment(cfg, l)
	if err != nil {
		return err
	}
	backends, err := backendsFor(ctx, cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("metrics.Register: %w", err)
	}

	nav := auth.NewMemoryNavigator(l.path)
	s := session.New(cfg, env, backends,
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithNavigator(nav),
	)
	defer s.Close()

	res, err := s.Start(ctx)
	if err != nil {
		return err
	}
	report(res, nav)

	if res.User == nil && res.State != auth.StateSuccess && l.email != "" {
		user, err := s.Login(ctx, l.email, l.password)
		if err != nil {
			fmt.Printf("manual login failed: %s\n", apiclient.Translate(err))
		} else {
			fmt.Printf("manual login as %s (%s)\n", user.Email, user.ID)
		}
	}

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("registry.Gather: %w", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			labels := ""
			for _, lp := range metric.GetLabel() {
				labels += lp.GetName() + "=" + lp.GetValue() + " "
			}
			fmt.Printf("%s{%s} %v\n", mf.GetName(), labels, metric.GetCounter().GetValue())
		}
	}
	return nil
}

func report(res auth.Result, nav *auth.MemoryNavigator) {
	fmt.Printf("platform:  %s\n", res.Platform)
	fmt.Printf("state:     %s\n", res.State)
	if res.User != nil {
		fmt.Printf("user:      %s %s %s\n", res.User.ID, res.User.FirstName, res.User.Email)
		fmt.Printf("linked:    telegram=%d vk=%d\n", utils.Value(res.User.TelegramID), utils.Value(res.User.VKID))
	}
	if res.Err != nil {
		if msg := apiclient.Translate(res.Err); msg != "" && !res.Soft {
			fmt.Printf("message:   %s\n", msg)
		}
		fmt.Printf("error:     %v (soft=%t)\n", res.Err, res.Soft)
	}
	fmt.Printf("route:     %s %v\n", nav.CurrentPath(), nav.History())
}

// environment builds the page context. Credential material is signed with the configured
// secrets so the dev backend accepts it.
func environment(cfg config.Config, l launch) (*platform.StaticEnvironment, error) {
	u, err := url.Parse(l.pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid -url: %w", err)
	}

	if l.vkUser != 0 {
		u.RawQuery = devbackend.SignVKLaunchParams(url.Values{
			"vk_app_id":   {"1"},
			"vk_user_id":  {strconv.FormatInt(l.vkUser, 10)},
			"vk_platform": {"desktop_web"},
			"vk_ts":       {strconv.FormatInt(time.Now().Unix(), 10)},
		}, cfg.GetVKAppSecret())
	}

	env := platform.NewStaticEnvironment(u.String())
	env.SetReferrer(l.referrer)
	if l.vkBridge {
		env.SetGlobal(platform.GlobalVKBridge, true)
	}

	if l.telegramUser != 0 {
		env.SetGlobal(platform.GlobalTelegramWebApp, true)
		initData := devbackend.SignTelegramInitData(url.Values{
			"user":      {`{"id":` + strconv.FormatInt(l.telegramUser, 10) + `,"first_name":"Demo"}`},
			"auth_date": {strconv.FormatInt(time.Now().Unix(), 10)},
		}, cfg.GetTelegramBotToken())
		if l.telegramDelay > 0 {
			time.AfterFunc(l.telegramDelay, func() { env.SetTelegramInitData(initData) })
		} else {
			env.SetTelegramInitData(initData)
		}
	}
	return env, nil
}

// backendsFor uses the local file store for the web, or Redis namespaced by the device id
// when REDIS_URL is set. The platform backends are in-process fakes of the SDK APIs.
func backendsFor(ctx context.Context, cfg config.Config, log zerolog.Logger) (storage.Backends, error) {
	var opts []localstore.Option
	if key := cfg.GetSealKey(); key != "" {
		opts = append(opts, localstore.WithSealKey(key))
	}
	local, err := localstore.Open(cfg.GetDataFolder(), opts...)
	if err != nil {
		return storage.Backends{}, err
	}

	var web storage.Backend = local
	if redisURL := cfg.GetRedisURL(); redisURL != "" {
		client, err := redisstore.NewClient(ctx, redisURL)
		if err != nil {
			return storage.Backends{}, err
		}
		log.Info().Str("device_id", local.DeviceID()).Msg("web storage on redis")
		web = redisstore.New(client, cfg.GetRedisPrefix(), local.DeviceID())
	}

	return storage.Backends{
		Web:      web,
		Telegram: telegramcloud.New(repofake.NewFakeCloudStorage()),
		VK:       vkbridge.New(repofake.NewFakeBridge()),
	}, nil
}
