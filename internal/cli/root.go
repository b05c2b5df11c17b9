package cli

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/PulseLoom/PulseLoom/internal/cli.version=1.2.3"
	version = "0.4.1"
	logo    = "\n" +
		"  ____        _          _\n" +
		" |  _ \\ _   _| |___  ___| |    ___   ___  _ __ ___\n" +
		" | |_) | | | | / __|/ _ \\ |   / _ \\ / _ \\| '_ ` _ \\\n" +
		" |  __/| |_| | \\__ \\  __/ |__| (_) | (_) | | | | | |\n" +
		" |_|    \\__,_|_|___/\\___|_____\\___/ \\___/|_| |_| |_|\n"
)

var rootCmd = &cobra.Command{
	Use:   "pulseloom",
	Short: "PulseLoom - Engineering Activity Insights",
	Long: color.CyanString(logo) + "\nWeaves weekly GitHub and Slack activity into monthly and quarterly\n" +
		"insights, and runs the evidence-gated manager analysis workflow.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Commands register here when their vars live in package scope;
	// subcommand files with flags register themselves via init().
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(gatewayCmd)
}
