package topology

import (
	"fmt"
	"github.com/ValentinKolb/dbpool/cmd/util"
	"github.com/ValentinKolb/dbpool/lib/affinity"
	"github.com/ValentinKolb/dbpool/lib/dbpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"strings"
)

// Topology is the planner output for the cores of this process
type Topology struct {
	Cores      []int   `json:"cores" yaml:"cores"`
	Workers    int     `json:"workers" yaml:"workers"`
	QueueSizes []int   `json:"queue_sizes" yaml:"queue_sizes"`
	Groups     []Group `json:"groups" yaml:"groups"`
}

// Group is one queue with the cores routed to it and the workers serving it
type Group struct {
	Queue   int   `json:"queue" yaml:"queue"`
	Size    int   `json:"size" yaml:"size"`
	Cores   []int `json:"cores" yaml:"cores"`
	Workers []int `json:"workers" yaml:"workers"`
}

func (t Topology) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("cores:   %v\n", t.Cores))
	sb.WriteString(fmt.Sprintf("workers: %d\n", t.Workers))
	sb.WriteString(fmt.Sprintf("queues:  %d\n", len(t.QueueSizes)))
	for _, g := range t.Groups {
		sb.WriteString(fmt.Sprintf("  queue %-3d size=%-5d cores=%v workers=%v\n", g.Queue, g.Size, g.Cores, g.Workers))
	}
	return strings.TrimRight(sb.String(), "\n")
}

var (
	TopologyCmd = &cobra.Command{
		Use:   "topology",
		Short: "Print the worker and queue layout the pool would use on this machine",
		Long: `Print the worker and queue layout the pool would use on this machine.

The layout is computed by the topology planner from the cores available to
this process and the pool flags. No database is opened.`,
		Args:    cobra.NoArgs,
		PreRunE: util.BindFlagsPreRun,
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := dbpool.Configure(affinity.System().Cores(), util.GetPoolConfig())
			return util.WriteOutput(os.Stdout, viper.GetString("output"), describe(plan))
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)
	util.SetupPoolFlags(TopologyCmd)
	TopologyCmd.Flags().StringP("output", "o", util.OutputText, util.WrapString("Output format (text, json, yaml)"))
}

// describe groups the plan by queue
func describe(plan dbpool.Plan) Topology {
	t := Topology{
		Cores:      plan.Cores,
		Workers:    plan.Workers,
		QueueSizes: plan.QueueSizes,
	}
	for q, size := range plan.QueueSizes {
		g := Group{Queue: q, Size: size, Cores: plan.CoresOf(q)}
		for w := 0; w < plan.Workers; w++ {
			if plan.GroupOf(w) == q {
				g.Workers = append(g.Workers, w)
			}
		}
		t.Groups = append(t.Groups, g)
	}
	return t
}
