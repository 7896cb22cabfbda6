package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/newmatik/gerbtrace-shell/internal/cliconfig"
	"github.com/newmatik/gerbtrace-shell/pkg/appdir"
	"github.com/newmatik/gerbtrace-shell/pkg/log"
	"github.com/newmatik/gerbtrace-shell/pkg/mailbox"
)

const longHelp = `Desktop shell companion for the Gerbtrace PCB viewer.

Carries information across self-updates: the viewer saves a payload right
before the updater replaces and relaunches the app, and consumes it exactly
once after the relaunch. Also serves the viewer's command boundary over a
loopback WebSocket.`

var exampleUsage = strings.TrimSpace(`
  gerbtrace-shell save '{"version":"2.3.0"}'
  gerbtrace-shell consume
  gerbtrace-shell serve --listen 127.0.0.1:0
  gerbtrace-shell call app_info --addr 127.0.0.1:53211 --token <token>
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// cli carries the resolved configuration into subcommands.
type cli struct {
	cfg     cliconfig.Config
	cfgPath string
	changed map[string]bool
	logger  zerolog.Logger
}

// load applies the config file, then GERBTRACE_* env, under explicitly set
// flags, and validates the result.
func (c *cli) load(cmd *cobra.Command) error {
	c.changed = map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { c.changed[f.Name] = true })

	if c.cfgPath == "" {
		c.cfgPath = cliconfig.DefaultConfigPath()
	}
	if c.cfgPath != "" && cliconfig.FileExists(c.cfgPath) {
		fc, err := cliconfig.LoadFileConfig(c.cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&c.cfg, fc, c.changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&c.cfg, c.changed); err != nil {
		return err
	}

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	c.logger = cliconfig.Logger(c.cfg, cmd.ErrOrStderr())
	if err := cliconfig.ApplyLogLevel(c.cfg.LogLevel); err != nil {
		return err
	}

	logCfg := c.cfg
	if logCfg.Token != "" {
		logCfg.Token = "*****"
	}
	c.logger.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}

func (c *cli) mailbox() *mailbox.Mailbox {
	return mailbox.New(
		appdir.Resolver(c.cfg.Identifier, c.cfg.DataDir),
		mailbox.WithLogger(log.NewZerologAdapterWithLogger(c.logger)),
	)
}

func newRootCmd() *cobra.Command {
	c := &cli{cfg: cliconfig.DefaultConfig()}

	root := &cobra.Command{
		Use:           "gerbtrace-shell",
		Short:         "Desktop shell companion for the Gerbtrace PCB viewer",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "path to config file (default: <user config dir>/gerbtrace/shell.toml)")
	pf.StringVar(&c.cfg.Identifier, "identifier", c.cfg.Identifier, "application identifier naming the data directory")
	pf.StringVar(&c.cfg.DataDir, "data-dir", c.cfg.DataDir, "override the application data directory")
	pf.StringVar(&c.cfg.LogLevel, "log-level", c.cfg.LogLevel, "log level: debug, info, warn, error")
	pf.BoolVar(&c.cfg.LogJSON, "log-json", c.cfg.LogJSON, "log JSON lines instead of console output")

	root.AddCommand(
		newSaveCmd(c),
		newConsumeCmd(c),
		newStatusCmd(c),
		newPathCmd(c),
		newServeCmd(c),
		newCallCmd(c),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger := log.NewConsoleLogger(os.Stderr)
		logger.Error().Err(err).Msg("gerbtrace-shell")
		os.Exit(1)
	}
}
