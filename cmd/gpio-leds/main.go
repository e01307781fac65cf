// Command gpio-leds drives GPIO indicator LEDs and exposes them over HTTP and MQTT.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-leds/internal/config"
	"github.com/sweeney/gpio-leds/internal/led"
)

const defaultConfigPath = "/etc/gpio-leds/leds.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "gpio-leds",
		Short:        "GPIO indicator LED daemon",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "Path to the YAML configuration file")

	root.AddCommand(newServeCmd(&configFile), newCheckCmd(&configFile))
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	var listen, logLevel string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LED daemon",
		Long: `Acquires the configured GPIO lines, serves the status page and API over HTTP ` +
			`and, when a broker is configured, bridges LED state and commands to MQTT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&listen, "listen", config.DefaultListen, `HTTP listen address ("off" disables)`)
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func newCheckCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the LEDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configFile)
			if err != nil {
				return err
			}
			printLEDs(cmd.OutOrStdout(), cfg.LEDConfigs())
			return nil
		},
	}
}

func printLEDs(w io.Writer, leds []led.Config) {
	for _, l := range leds {
		if l.GPIO < 0 {
			fmt.Fprintf(w, "%-12s unavailable (skipped)\n", l.Name)
			continue
		}
		sleep := "auto"
		if l.CanSleep != nil {
			sleep = fmt.Sprint(*l.CanSleep)
		}
		fmt.Fprintf(w, "%-12s %s:%d active_low=%t default=%s retain=%t can_sleep=%s\n",
			l.Name, l.Chip, l.GPIO, l.ActiveLow, l.DefaultState, l.RetainStateSuspended, sleep)
	}
}
