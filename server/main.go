package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fileshare/logger"

	"github.com/alecthomas/kong"
	"github.com/pkg/errors"
	"github.com/thejerf/suture/v4"
	_ "go.uber.org/automaxprocs"
)

type cli struct {
	Config    string `help:"YAML configuration file" type:"path"`
	Listen    string `help:"TCP listen address (default :8000)"`
	DataDir   string `help:"Directory for credentials and user data (default server_data)" type:"path"`
	APIListen string `help:"Status API listen address (default 127.0.0.1:8080)"`
	NoAPI     bool   `help:"Disable the status API"`
	Debug     bool   `help:"Enable debug output for all facilities"`
}

func (c cli) config() (Config, error) {
	cfg := DefaultConfig()
	if c.Config != "" {
		var err error
		if cfg, err = LoadConfig(c.Config); err != nil {
			return cfg, err
		}
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.DataDir != "" {
		cfg.DataDir = c.DataDir
	}
	if c.APIListen != "" {
		cfg.APIListen = c.APIListen
	}
	if c.NoAPI {
		cfg.APIListen = ""
	}
	return cfg, cfg.Validate()
}

func main() {
	var params cli
	kong.Parse(&params, kong.Description("Multi-user file sharing server."))

	if params.Debug {
		logger.DefaultLogger.SetFlags(logger.DebugFlags)
		logger.EnableAll(logger.DefaultLogger)
	}

	cfg, err := params.config()
	if err != nil {
		l.Warnln("Configuration:", err)
		os.Exit(2)
	}

	srv, err := NewServer(cfg)
	if err != nil {
		l.Warnln("Starting server:", err)
		os.Exit(1)
	}

	sup := suture.New("main", suture.Spec{
		EventHook: func(e suture.Event) { l.Infoln(e) },
	})
	sup.Add(srv)
	if cfg.APIListen != "" {
		sup.Add(newAPIService(srv, cfg.APIListen))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := sup.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Warnln("Supervisor:", err)
		os.Exit(1)
	}
	l.Infoln("Server stopped.")
}
