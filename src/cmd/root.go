package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"solv/src/internal/solvdir"
	"solv/src/internal/telemetry"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string
var profileEnabled bool
var profileDir string

// invocationID correlates every telemetry event emitted by one command
// invocation, the way a request ID threads through a server's log lines.
var invocationID string

var rootCmd = &cobra.Command{
	Use:   "solv",
	Short: "solv drives rpm-md/susetags package installs over a SAT dependency solver",
	Long: `solv resolves and applies package installation, removal, and update
requests against one or more rpm-md/susetags repositories plus the local RPM
database, delegating the actual dependency search to a SAT solver and RPM
transaction set it treats as opaque collaborators. Metadata is cached under
a content-cookie-validated on-disk store shared across runs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		invocationID = uuid.NewString()
		if !profileEnabled {
			return nil
		}
		dir := strings.TrimSpace(profileDir)
		if dir == "" {
			dir = filepath.Join(solvdir.MustHome(), "profiles")
		}
		info, err := telemetry.Start(dir)
		if err != nil {
			return err
		}
		telemetry.Event(
			"command.start",
			"invocation_id", invocationID,
			"command", cmd.CommandPath(),
			"args_count", len(args),
			"config", viper.ConfigFileUsed(),
		)
		pterm.Info.Printfln("Profiling enabled.\nLogs: %s\nCPU: %s\nHeap: %s", info.LogPath, info.CPUPath, info.HeapPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if !profileEnabled {
			return
		}
		telemetry.Event("command.stop", "invocation_id", invocationID, "command", cmd.CommandPath())
		if _, err := telemetry.Stop(); err != nil {
			pterm.Error.Printfln("failed to flush profiling artifacts: %v", err)
		}
	},
}

// InvocationID returns the correlation id stamped for the command currently
// running, or "" before PersistentPreRunE has fired (e.g. in tests that
// call a subcommand's RunE directly without going through Execute).
func InvocationID() string {
	return invocationID
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is solv's global config)")
	rootCmd.PersistentFlags().BoolVar(&profileEnabled, "profile", false, "collect CPU/heap profiles and structured timing logs")
	rootCmd.PersistentFlags().StringVar(&profileDir, "profile-dir", "", "directory for profiling artifacts (default: <solv-home>/profiles)")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigFile(solvdir.ConfigFile())
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		// Config file found and read
	}
}
