package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"vigilstream/internal/modes"
	"vigilstream/pkg/config"
)

var configPath string

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the vigilstream server",
		Long: "Run the gRPC and HTTP APIs, the processing pipeline and the job supervisor. " +
			"Configuration comes from defaults, then a YAML file, then VIGIL_* environment variables.",
		Args: cobra.NoArgs,
		RunE: runServer,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (skips the search path)")
	return cmd
}

func loadConfig() (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		return cfg, configPath, err
	}
	return config.LoadConfig()
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, source, err := loadConfig()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "configuration: %s\n", source)
	return modes.RunServer(cfg)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective server configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, source, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := cfg.ToYAML()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", source, data)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file (skips the search path)")
	return cmd
}
