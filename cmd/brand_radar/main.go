package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"

	"github.com/pulsemetrics/brand_radar/internal/server"
	"github.com/pulsemetrics/brand_radar/internal/service"
	"github.com/pulsemetrics/brand_radar/pkg/config"
	"github.com/pulsemetrics/brand_radar/pkg/engine"
	"github.com/pulsemetrics/brand_radar/pkg/llm"
	"github.com/pulsemetrics/brand_radar/pkg/logger"
	"github.com/pulsemetrics/brand_radar/pkg/model"
	"github.com/pulsemetrics/brand_radar/pkg/scrape"
	"github.com/pulsemetrics/brand_radar/pkg/storage"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the service name.
	Name string = "brand_radar"
	// Version is the service version.
	Version string
	// flagconf is the config file path.
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(flagconf)
	if err != nil {
		panic(err)
	}

	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.File); err != nil {
		panic(err)
	}

	kratosLogger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	store, err := storage.NewStorage(cfg.DB)
	if err != nil {
		logger.Log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	analyzer, err := llm.NewClient(context.Background(), cfg)
	if err != nil {
		logger.Log.Fatalf("failed to create LLM client: %v", err)
	}

	fetcher := scrape.NewFetcher(time.Duration(cfg.Analysis.ScrapeTimeoutSec) * time.Second)

	eng := engine.New(cfg, store, analyzer, fetcher, func(p model.AnalysisProgress) {
		logger.Log.Infof("[%s] %d%% %s", p.Status, p.Progress, p.Message)
	})

	svc := service.NewAnalysisService(eng, store, kratosLogger)
	httpSrv := server.NewHTTPServer(&cfg.Server, svc, kratosLogger)

	app := kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Logger(kratosLogger),
		kratos.Server(httpSrv),
	)

	logger.Log.Infof("%s listening on %s", Name, cfg.Server.Addr)
	if err := app.Run(); err != nil {
		panic(err)
	}
}
