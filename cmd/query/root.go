package query

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dbpool/cmd/util"
	"github.com/ValentinKolb/dbpool/lib/store"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"time"
)

var (
	log = logger.GetLogger("cli")

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:   "query",
		Short: "Run queries against a database through the dispatch pool",
		Long: `Run queries against a database through the dispatch pool.

Every query opens the configured database, executes through the pool exactly
like any other caller and closes the database again (pool first, then the
engine). The configuration can be set via command line flags or environment
variables. The format of the environment variables is DBPOOL_<flag>
(e.g. DBPOOL_POOL_WORKERS=8)`,
		PersistentPreRunE: util.BindFlagsPreRun,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add database and pool flags to the query commands
	util.SetupDatabaseFlags(QueryCommands)

	key := "output"
	QueryCommands.PersistentFlags().StringP(key, "o", util.OutputText, util.WrapString("Output format (text, json, yaml)"))

	key = "timeout"
	QueryCommands.PersistentFlags().Int(key, 10, util.WrapString("The timeout of a single query in seconds"))

	// Add subcommands
	QueryCommands.AddCommand(getCmd)
	QueryCommands.AddCommand(batchCmd)
	QueryCommands.AddCommand(scanCmd)
	QueryCommands.AddCommand(putCmd)
	QueryCommands.AddCommand(delCmd)
	QueryCommands.AddCommand(statsCmd)
	QueryCommands.AddCommand(perfTestCmd)
}

// queryFunc executes a query and returns the value to print
type queryFunc func(ctx context.Context, d *store.Database) (any, error)

// runQuery opens the database, runs fn with a timeout, closes the database
// and prints the result in the configured output format.
func runQuery(fn queryFunc) error {
	d, _, err := util.OpenDatabase()
	if err != nil {
		return err
	}

	id := uuid.New()
	log.Debugf("query %s started", id)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(viper.GetInt("timeout"))*time.Second)
	start := time.Now()
	res, err := fn(ctx, d)
	elapsed := time.Since(start)
	cancel()

	if cerr := d.Close(); cerr != nil {
		err = multierror.Append(err, cerr)
	}
	if err != nil {
		return fmt.Errorf("query %s failed: %w", id, err)
	}

	fmt.Fprintf(os.Stderr, "Query %s completed in %s\n", id, elapsed)
	if res == nil {
		return nil
	}
	return util.WriteOutput(os.Stdout, viper.GetString("output"), res)
}
