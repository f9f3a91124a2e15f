package main

import (
	"flag"
	"net/http"

	"itsdu-backend/lib/browser"
	"itsdu-backend/lib/configutil"
	"itsdu-backend/lib/scrapers/itslearning/auth"
	"itsdu-backend/lib/serviceutil"
	"itsdu-backend/lib/telemetry"
	"itsdu-backend/services/resources"
	"itsdu-backend/services/resources/server"
)

type BrowserConfig struct {
	Bin         string `json:"bin"`
	MaxSessions int64  `json:"max_sessions"`
}

type AuthConfig struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type Config struct {
	Port    int           `json:"port"`
	Browser BrowserConfig `json:"browser"`
	Auth    AuthConfig    `json:"auth"`
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.SetupFromEnv(ctx, "itsdud")
	telemetry.InitSlog(*verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}

	sessions, err := browser.NewManager(browser.Options{
		Bin:         cfg.Browser.Bin,
		MaxSessions: cfg.Browser.MaxSessions,
	})
	if err != nil {
		serviceutil.Fatal("init browser manager", err)
	}
	defer sessions.Close()

	tokens := auth.StaticTokenSource{
		auth.AccessToken:  cfg.Auth.AccessToken,
		auth.RefreshToken: cfg.Auth.RefreshToken,
	}

	svc := resources.NewService(sessions, tokens, resources.Options{})

	mux := http.NewServeMux()
	server.Mount(mux, svc)

	go serviceutil.StartHttpServer(cfg.Port, mux)
	<-ctx.Done()
}
