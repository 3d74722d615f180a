// Package server implements the entry point for running the odometry node.
package server

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"

	"go.viam.com/ackermann/config"
	"go.viam.com/ackermann/logging"
)

// Arguments for the command.
type Arguments struct {
	ConfigFile  string `flag:"0,required,usage=odometry config file"`
	Debug       bool   `flag:"debug"`
	LogFile     string `flag:"log-file,usage=also write logs to this file, rotated by size"`
	NoWatch     bool   `flag:"no-watch,usage=do not reload logging settings when the config file changes"`
	ValidateCfg bool   `flag:"validate,usage=validate the config and exit"`
}

// RunServer reads the config, builds the odometry node and runs it until ctx is done.
func RunServer(ctx context.Context, args []string, logger logging.Logger) (err error) {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	config.InitLoggingSettings(logger, argsParsed.Debug)
	if argsParsed.LogFile != "" {
		appender, closer := logging.NewFileAppender(argsParsed.LogFile, 0)
		logger.AddAppender(appender)
		defer utils.UncheckedErrorFunc(closer.Close)
	}

	initialReadCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	cfg, err := config.Read(initialReadCtx, argsParsed.ConfigFile, logger)
	cancel()
	if err != nil {
		return err
	}
	if err := config.ApplyLogConfig(cfg, logger); err != nil {
		return err
	}
	if argsParsed.ValidateCfg {
		logger.Infow("config is valid", "path", cfg.ConfigFilePath)
		return nil
	}

	err = serve(ctx, cfg, !argsParsed.NoWatch, clock.New(), logger)
	if err != nil {
		logger.Errorw("error running odometry", "error", err)
	}
	return err
}

func serve(ctx context.Context, cfg *config.Config, watch bool, clk clock.Clock, logger logging.Logger) (err error) {
	node, err := newOdometryNode(ctx, cfg, clk, logger)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, node.Close(context.Background()))
	}()
	logger.Info("odometry driver initialized")

	g, gctx := errgroup.WithContext(ctx)
	if node.web != nil {
		g.Go(func() error {
			return node.web.Serve(gctx)
		})
	}
	if watch && cfg.ConfigFilePath != "" {
		watcher, err := config.NewWatcher(gctx, cfg.ConfigFilePath, logger)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, watcher.Close(context.Background()))
		}()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case newCfg := <-watcher.Config():
					// Only logging settings are reloaded; sources need a restart.
					if err := config.ApplyLogConfig(newCfg, logger); err != nil {
						logger.Warnw("error applying log config", "error", err)
					}
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}
