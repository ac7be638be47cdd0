package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/go-logr/logr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bayleafwalker/bindery-extensions/internal/agent"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/publish"
	"github.com/bayleafwalker/bindery-extensions/internal/registry"
)

type config struct {
	listenAddr  string
	registryDir string
	natsURL     string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.listenAddr, "listen", ":50061", "address to listen on")
	flag.StringVar(&cfg.registryDir, "registry-dir", "", "directory of extension manifests; when set, installs of unpublished extensions are refused")
	flag.StringVar(&cfg.natsURL, "nats-url", os.Getenv("NATS_URL"), "NATS server to announce installs on; empty disables events")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
	logger := ctrl.Log.WithName("extension-agent")

	if err := run(cfg, logger); err != nil {
		logger.Error(err, "extension agent stopped")
		os.Exit(1)
	}
}

func run(cfg config, logger logr.Logger) error {
	var target installer.Target = installer.NewMemoryTarget()
	if cfg.registryDir != "" {
		reg, err := registry.LoadDir(cfg.registryDir)
		if err != nil {
			return fmt.Errorf("load registry %s: %w", cfg.registryDir, err)
		}
		logger.Info("loaded registry", "dir", cfg.registryDir, "registry", reg.String())
		target = agent.CheckedTarget{Registry: reg, Target: target}
	}

	if cfg.natsURL != "" {
		pub, err := publish.NewNATSPublisher(cfg.natsURL)
		if err != nil {
			return err
		}
		defer pub.Close()
		target = publish.Target{Target: target, Publisher: pub}
		logger.Info("announcing installs", "nats", cfg.natsURL)
	}

	lis, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.listenAddr, err)
	}

	grpcServer := grpc.NewServer()
	agent.RegisterInstallAgentServer(grpcServer, agent.NewServer(target, logger))

	healthServer := health.NewServer()
	healthServer.SetServingStatus(agent.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	ctx := ctrl.SetupSignalHandler()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}()

	logger.Info("serving install agent", "address", lis.Addr().String())
	return grpcServer.Serve(lis)
}
