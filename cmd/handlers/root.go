/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"teamdigest/internal/config"
	"teamdigest/internal/logger"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "teamdigest",
		Short: "teamdigest turns team chat into personalized daily digests.",
		Long: `teamdigest clusters a stream of team chat messages into topics, learns what
each person engages with, and ranks the day's messages by role, project phase
and topic interest into a short daily digest.

Examples:
  # Print digests for day 18 of the synthetic workspace
  teamdigest demo --day 18

  # Show the topics discovered over a two week window
  teamdigest topics --day 10

  # Semantic search over indexed messages
  teamdigest search "supplier lead time" --project P1

  # Build digests every morning and expose /metrics
  teamdigest schedule`,
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.teamdigest.yaml)")

	rootCmd.AddCommand(NewDemoCmd())
	rootCmd.AddCommand(NewTopicsCmd())
	rootCmd.AddCommand(NewSearchCmd())
	rootCmd.AddCommand(NewScheduleCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Configure(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	if cfg.App.ConfigFile != "" {
		logger.Debug("Using config file", "path", cfg.App.ConfigFile)
	}
}
