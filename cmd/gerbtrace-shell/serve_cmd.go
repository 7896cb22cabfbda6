package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/newmatik/gerbtrace-shell/internal/bridge"
	"github.com/newmatik/gerbtrace-shell/internal/cliconfig"
	"github.com/newmatik/gerbtrace-shell/internal/commands"
	"github.com/newmatik/gerbtrace-shell/pkg/log"
	"github.com/newmatik/gerbtrace-shell/plugins/configwatcher"
)

const shutdownTimeout = 5 * time.Second

// endpoint is printed on stdout once the bridge listens, for the host
// process to hand to the webview.
type endpoint struct {
	Addr  string `json:"addr"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command boundary on a loopback WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewZerologAdapterWithLogger(c.logger)

			router := commands.NewRouter(logger)
			commands.RegisterPostUpdate(router, c.mailbox())
			commands.RegisterAbout(router, commands.DefaultAbout(getVersion()))

			srv := bridge.NewServer(bridge.Config{
				Addr:            c.cfg.ListenAddr,
				Token:           c.cfg.Token,
				ReadTimeout:     c.cfg.ReadTimeout,
				MaxMessageBytes: int64(c.cfg.MaxMessageBytes),
				Logger:          logger,
			}, router)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := srv.Start(); err != nil {
				return fmt.Errorf("start bridge: %w", err)
			}

			ep := endpoint{
				Addr:  srv.Addr(),
				URL:   "ws://" + srv.Addr() + bridge.Path,
				Token: srv.Token(),
			}
			if err := json.NewEncoder(cmd.OutOrStdout()).Encode(ep); err != nil {
				c.logger.Warn().Err(err).Msg("failed to print endpoint")
			}

			if w := c.startConfigWatcher(ctx); w != nil {
				defer w.Stop()
			}

			<-sigCh
			c.logger.Info().Msg("received signal, stopping...")

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("stop bridge: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&c.cfg.ListenAddr, "listen", c.cfg.ListenAddr, "loopback address to listen on")
	cmd.Flags().StringVar(&c.cfg.Token, "token", c.cfg.Token, "session token (random when empty)")
	cmd.Flags().DurationVar(&c.cfg.ReadTimeout, "read-timeout", c.cfg.ReadTimeout, "close connections silent for this long")
	cmd.Flags().IntVar(&c.cfg.MaxMessageBytes, "max-message-bytes", c.cfg.MaxMessageBytes, "maximum request size")
	return cmd
}

// startConfigWatcher hot-reloads the log level when the config file changes.
// It returns nil when there is nothing to watch.
func (c *cli) startConfigWatcher(ctx context.Context) *configwatcher.Watcher {
	if c.cfgPath == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(c.cfgPath)); err != nil {
		c.logger.Debug().Str("path", c.cfgPath).Msg("config directory missing, not watching")
		return nil
	}

	wcfg := configwatcher.DefaultConfig()
	wcfg.Path = c.cfgPath
	wcfg.Logger = log.NewZerologAdapterWithLogger(c.logger)
	wcfg.OnChange = func(path string) {
		level, err := cliconfig.ReloadLogLevel(path, c.changed)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("config reload failed")
			return
		}
		if level != "" {
			c.logger.Info().Str("level", level).Msg("log level reloaded")
		}
	}

	w := configwatcher.New(wcfg)
	if err := w.Start(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("config watcher disabled")
		return nil
	}
	return w
}
