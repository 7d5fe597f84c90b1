package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dbpool/cmd/query"
	"github.com/ValentinKolb/dbpool/cmd/topology"
	"github.com/spf13/cobra"
	"os"
	"runtime"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dbpool",
		Short: "dispatch pool for key-value storage engines",
		Long: fmt.Sprintf(`dbpool (v%s)

Executes blocking key-value reads (point lookups, batched lookups and
ordered seeks) on a bounded set of CPU pinned worker threads in front of a
maple, pebble or sqlite storage engine.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dbpool",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dbpool v%s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(query.QueryCommands)
	RootCmd.AddCommand(topology.TopologyCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
