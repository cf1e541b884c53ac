package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/udplog/internal/config"
	"github.com/zsiec/udplog/internal/console"
	"github.com/zsiec/udplog/internal/errors"
	"github.com/zsiec/udplog/internal/health"
	"github.com/zsiec/udplog/internal/ingestion"
	"github.com/zsiec/udplog/internal/logger"
	"github.com/zsiec/udplog/internal/metrics"
	"github.com/zsiec/udplog/internal/registry"
	"github.com/zsiec/udplog/internal/server"
	"github.com/zsiec/udplog/pkg/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "%s: unexpected failure: %v\n", version.Name, r)
			code = errors.ExitUnknown
		}
	}()

	flags := config.NewFlagSet(version.Name)
	flags.SetOutput(stderr)
	if err := flags.Parse(args); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Name, err)
		return errors.ExitUsage
	}
	if flags.NArg() > 0 {
		fmt.Fprintf(stderr, "%s: unexpected argument %q\n", version.Name, flags.Arg(0))
		return errors.ExitUsage
	}

	if help, _ := flags.GetBool("help"); help {
		fmt.Fprintf(stdout, "Usage: %s [flags]\n\n", version.Name)
		flags.SetOutput(stdout)
		flags.PrintDefaults()
		return errors.ExitOK
	}
	if showVersion, _ := flags.GetBool("version"); showVersion {
		fmt.Fprintln(stdout, version.GetInfo().String())
		return errors.ExitOK
	}

	configPath, _ := flags.GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", version.Name, err)
		return errors.ExitCode(err)
	}

	instanceID := uuid.New().String()
	entry, err := logger.New(&cfg.Logging, instanceID)
	if err != nil {
		fmt.Fprintf(stderr, "%s: failed to initialize logger: %v\n", version.Name, err)
		return errors.ExitUsage
	}
	if cfg.Interactive && (cfg.Logging.Output == "stderr" || cfg.Logging.Output == "stdout" || cfg.Logging.Output == "") {
		// The console owns the terminal.
		entry.Logger.SetOutput(io.Discard)
	}
	log := logger.NewLogrusAdapter(entry)

	log.WithField("version", version.GetInfo().Short()).Info("Starting udplog")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	if err := serve(cfg, instanceID, log, entry, stderr); err != nil {
		log.WithError(err).Error("udplog stopped with error")
		fmt.Fprintf(stderr, "%s: %v\n", version.Name, err)
		return errors.ExitCode(err)
	}

	log.Info("udplog shutdown complete")
	return errors.ExitOK
}

// serve runs the pipeline and its admin surfaces until a signal, a console
// quit, or a fatal stage error.
func serve(cfg *config.Config, instanceID string, log logger.Logger, entry *logrus.Entry, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := ingestion.NewManager(cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		if err := metrics.Register(reg, mgr); err != nil {
			return errors.WrapInternalError(err, "failed to register metrics")
		}
	}

	var srv *server.Server
	if cfg.Server.Enabled {
		srv = server.New(&cfg.Server, &cfg.Metrics, entry, reg)
		srv.RegisterHealthChecker(health.NewPipelineChecker(mgr))
		srv.RegisterHealthChecker(health.NewDiskChecker(cfg.Output.Path, cfg.Output.MinFreeBytes))
		srv.RegisterRoutes(ingestion.NewHandlers(mgr, log).RegisterRoutes)
	}

	var redisRegistry *registry.RedisRegistry
	if cfg.Registry.Enabled {
		client := registry.NewClient(&cfg.Registry)
		redisRegistry = registry.NewRedisRegistry(client, log, cfg.Registry.TTL)
		defer redisRegistry.Close()
		if srv != nil {
			srv.RegisterHealthChecker(health.NewRedisChecker(client))
		}
	}

	if srv != nil {
		if err := srv.Listen(); err != nil {
			return err
		}
	}

	if err := mgr.Start(ctx); err != nil {
		if srv != nil {
			_ = srv.Shutdown()
		}
		return err
	}

	// Admin surfaces outlive the signal context so /health reports the
	// shutdown, and stop only after the pipeline has.
	auxCtx, auxCancel := context.WithCancel(context.Background())
	var aux sync.WaitGroup

	if srv != nil {
		aux.Add(1)
		go func() {
			defer aux.Done()
			if err := srv.Serve(auxCtx); err != nil {
				log.WithError(err).Error("Admin server stopped")
			}
		}()
	}

	if redisRegistry != nil {
		hostname, _ := os.Hostname()
		inst := registry.Instance{
			ID:         instanceID,
			Hostname:   hostname,
			ListenAddr: mgr.LocalAddr().String(),
			OutputPath: mgr.OutputPath(),
			Version:    version.Version,
			StartedAt:  mgr.Stats().StartedAt,
		}
		reporter := registry.NewReporter(redisRegistry, mgr, inst, cfg.Registry.HeartbeatInterval, log)
		aux.Add(1)
		go func() {
			defer aux.Done()
			reporter.Run(auxCtx)
		}()
	}

	if cfg.Interactive {
		err := console.Run(ctx, mgr, mgr.Done(), console.Options{
			ListenAddr: mgr.LocalAddr().String(),
			OutputPath: mgr.OutputPath(),
		})
		if err != nil {
			log.WithError(err).Warn("Console exited with error")
		}
	} else {
		fmt.Fprintf(stderr, "%s: listening on %s, writing to %s\n", version.Name, mgr.LocalAddr(), mgr.OutputPath())
		select {
		case <-ctx.Done():
			log.Info("Received shutdown signal")
		case <-mgr.Done():
		}
	}

	mgr.Stop()
	auxCancel()
	aux.Wait()

	return mgr.Err()
}
