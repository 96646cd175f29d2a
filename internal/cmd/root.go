package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/foresight/internal/config"
	"github.com/Iron-Ham/foresight/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "foresight",
	Short: "Generate, upload, train and predict in four gated steps",
	Long: `Foresight walks a session through a four-stage workflow: generate a
synthetic dataset, upload it, retrieve the model trained on it, and make a
prediction. Each stage unlocks the next.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// Exit statuses returned by ExitCode.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitRejected = 2 // invalid input or a locked capability
	ExitStalled  = 3 // a blocking wait gave up on its operation
)

// ExitCode maps an error returned by Execute to a process exit status by
// its severity.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch errors.GetSeverity(err) {
	case errors.SeverityWarning:
		return ExitRejected
	case errors.SeverityCritical:
		return ExitStalled
	default:
		return ExitFailure
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/foresight/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FORESIGHT")
	// Replace dots with underscores for nested keys in env vars
	// e.g., FORESIGHT_PIPELINE_UPLOAD_POLICY for pipeline.upload_policy
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
