package cmd

import (
	"github.com/spf13/cobra"

	"github.com/buckleypaul/benchlab/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "benchlab",
	Short: "Remote lab session manager for Arduino boards",
	Long: `Benchlab runs one booked session of a remote Arduino lab: it identifies
the boards on the USB hub, serves compile, upload and serial monitor
requests for the booked user, and flashes the stop firmware to every
board when the session starts and before it ends.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./benchlab.yaml or /etc/benchlab/benchlab.yaml)")
}

// loadConfig reads the config file and environment. Flags named in bind are
// mapped onto config keys and override both.
func loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, error) {
	v := config.NewViper()
	for key, flag := range bind {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			_ = v.BindPFlag(key, f)
		}
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	return config.Load(v)
}

// configFile returns the file a command should write to.
func configFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.FileName
}
