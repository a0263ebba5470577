// Command telemetry-advisor runs the Processor as a standing service:
// it loads configuration, probes the LLM endpoint, and serves the
// recommendation loop plus the self-observability HTTP endpoint until
// signaled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/spf13/viper"

	"github.com/grafana/telemetry-advisor/modules/advisor"
	advisorlog "github.com/grafana/telemetry-advisor/pkg/util/log"
)

func main() {
	configFile := flag.String("config.file", "", "path to a YAML configuration file")

	var cfg advisor.Config
	cfg.RegisterFlagsAndApplyDefaults("", flag.CommandLine)
	flag.Parse()

	if err := loadConfigFile(*configFile, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("TELEMETRY_ADVISOR_LLM_API_KEY")
	}

	logger := advisorlog.New(logLevel(cfg.LogLevel))

	p, err := advisor.New(cfg)
	if err != nil {
		level.Error(logger).Log("msg", "failed to build processor", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled && cfg.ListenAddr != "" {
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: p.Router()}
		go func() {
			level.Info(logger).Log("msg", "serving self-observability endpoint", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				level.Error(logger).Log("msg", "status server failed", "err", err)
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}

	if err := services.StartAndAwaitRunning(ctx, p); err != nil {
		level.Error(logger).Log("msg", "failed to start processor", "err", err)
		os.Exit(1)
	}

	level.Info(logger).Log("msg", "telemetry advisor started")
	<-ctx.Done()

	stopCtx := context.Background()
	if err := services.StopAndAwaitTerminated(stopCtx, p); err != nil {
		level.Error(logger).Log("msg", "error stopping processor", "err", err)
		os.Exit(1)
	}
}

func loadConfigFile(path string, cfg *advisor.Config) error {
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return v.Unmarshal(cfg)
}

func logLevel(raw string) advisorlog.Level {
	switch raw {
	case "debug":
		return advisorlog.LevelDebug
	case "warn":
		return advisorlog.LevelWarn
	case "error":
		return advisorlog.LevelError
	default:
		return advisorlog.LevelInfo
	}
}
