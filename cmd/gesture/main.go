// gesture runs the gesture and voice interpretation engine.
//
// Usage:
//
//	gesture serve              # operator API, event stream, devices
//	gesture replay script.jsonl
//	gesture ports              # list serial ports for the relay board
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-gesture/internal/config"
	"github.com/teslashibe/go-gesture/internal/log"
	"github.com/teslashibe/go-gesture/pkg/hardware"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "gesture",
		Short:         "Gesture and voice command interpretation engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./gesture.yaml or $HOME/.gesture/gesture.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	load := func() (config.Config, error) {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return cfg, err
		}
		log.Init(cfg.LogLevel)
		return cfg, nil
	}

	root.AddCommand(newServeCmd(v, load))
	root.AddCommand(newReplayCmd(load))
	root.AddCommand(newPortsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// loader loads the configuration once flags have been parsed.
type loader func() (config.Config, error)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports available for the relay board",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := hardware.Ports()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gesture %s (commit: %s)\n", version, commit)
		},
	}
}
