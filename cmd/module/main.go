// Package main is the viam-ros-bridge module.
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/module"
	"go.viam.com/utils"

	"github.com/brokenrobotz/viam-ros-bridge/bridge"
	"github.com/brokenrobotz/viam-ros-bridge/nodes"
	"github.com/brokenrobotz/viam-ros-bridge/pkg/msgs"
	"github.com/brokenrobotz/viam-ros-bridge/ros"
)

const (
	// metricsAddrEnv enables a prometheus endpoint when set, e.g. ":9102".
	metricsAddrEnv = "ROS_BRIDGE_METRICS_ADDR"
	shutdownGrace  = 2 * time.Second
)

func main() {
	utils.ContextualMain(mainWithArgs, module.NewLoggerFromArgs("viam-ros-bridge"))
}

func mainWithArgs(ctx context.Context, _ []string, logger logging.Logger) error {
	driver := ros.NewGorosDriver(msgs.Default, logger.Sublogger("goroslib"))
	rt := bridge.NewRuntime(driver, shutdownGrace, logger)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*shutdownGrace)
		defer cancel()
		rt.Shutdown(stopCtx)
	}()

	if addr := os.Getenv(metricsAddrEnv); addr != "" {
		stop, err := serveMetrics(addr, rt, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	m, err := module.NewModuleFromArgs(ctx, logger)
	if err != nil {
		return err
	}
	for _, e := range nodes.Register(rt) {
		if err := m.AddModelFromRegistry(ctx, e.API, e.Model); err != nil {
			return err
		}
	}

	if err := m.Start(ctx); err != nil {
		return err
	}
	defer m.Close(ctx)

	<-ctx.Done()
	return nil
}

func serveMetrics(addr string, rt *bridge.Runtime, logger logging.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := rt.Metrics().Register(reg); err != nil {
		return nil, errors.Wrap(err, "register metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("metrics server stopped", "error", err)
		}
	}()
	logger.Infow("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Debugw("metrics server shutdown", "error", err)
		}
	}, nil
}
