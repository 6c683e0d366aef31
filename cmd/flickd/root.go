package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/micro-nova/flick-go/internal/settings"
)

// app carries the loaded settings to the subcommands.
type app struct {
	v        *viper.Viper
	cfgFile  string
	settings settings.Settings
}

// newRootCmd creates the root flickd command with all subcommands attached.
func newRootCmd() *cobra.Command {
	a := &app{v: settings.NewViper()}

	cmd := &cobra.Command{
		Use:           "flickd",
		Short:         "Flick command relay daemon",
		Long:          "flickd relays next, previous and play/pause commands from a companion\ndevice to a media host, which executes them on the selected playback backend.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}
	cmd.SetVersionTemplate("flickd {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "settings file (default: flickd.yaml in the config dir)")
	pf.Bool("debug", false, "enable debug logging")
	pf.String("node", "", "node name announced to the peer (default: hostname)")
	pf.String("config-dir", "", "directory for the snapshot and credential files")

	cmd.AddCommand(
		newHostCmd(a),
		newCompanionCmd(a),
		newDemoCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// flagKeys maps command-line flags onto settings keys. A flag only
// overrides the key when it is set explicitly.
var flagKeys = map[string]string{
	"debug":      "debug",
	"node":       "node",
	"config-dir": "config_dir",
	"addr":       "http.addr",
	"api-key":    "http.api_key",
	"transport":  "link.transport",
	"url":        "link.url",
	"serial":     "link.serial_port",
	"stdin":      "source.stdin",
}

// load binds the running command's flags, reads the settings and installs
// the default logger.
func (a *app) load(cmd *cobra.Command) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	s, err := settings.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.settings = s

	logLevel := slog.LevelInfo
	if s.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel})))
	return nil
}
