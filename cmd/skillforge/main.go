package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skillforge/skillforge/pkg/logger"
	"github.com/skillforge/skillforge/pkg/presenter"
	"github.com/skillforge/skillforge/pkg/sandbox"
	"github.com/skillforge/skillforge/pkg/skills"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("SKILLFORGE")
	viper.AutomaticEnv()

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillforge")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("sandbox.timeout", sandbox.DefaultTimeout)
	viper.SetDefault("sandbox.allowed_modules", sandbox.AllModules())
	viper.SetDefault("ranker.enabled", false)
}

var rootCmd = &cobra.Command{
	Use:   "skillforge",
	Short: "Agent skills with progressive disclosure",
	Long: `Skillforge manages a library of self-describing skills and drives their use
through progressive disclosure: metadata for discovery, full instructions on
selection, and sandboxed code execution on demand.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			presenter.Warning(fmt.Sprintf("Invalid log level %q, using info", viper.GetString("log_level")))
		}
		logger.SetLogFormat(viper.GetString("log_format"))
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().StringSlice("skills-dir", nil, "Skill directories to scan (overrides config)")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("skills.dirs", rootCmd.PersistentFlags().Lookup("skills-dir"))

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// newStore builds a skill store from the configured directories.
func newStore() (*skills.Store, error) {
	if dirs := viper.GetStringSlice("skills.dirs"); len(dirs) > 0 {
		return skills.NewStore(skills.WithSkillDirs(dirs...))
	}
	return skills.NewStore()
}

// newExecutor builds a sandbox executor from configuration.
func newExecutor() (*sandbox.Executor, error) {
	timeout := viper.GetDuration("sandbox.timeout")
	if timeout <= 0 {
		timeout = sandbox.DefaultTimeout
	}
	modules := viper.GetStringSlice("sandbox.allowed_modules")
	if len(modules) == 0 {
		modules = sandbox.AllModules()
	}
	return sandbox.NewExecutor(
		sandbox.WithAllowedModules(modules...),
		sandbox.WithTimeout(timeout),
	)
}
