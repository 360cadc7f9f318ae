package cli

import (
	"github.com/absmach/cohort/pkg/sdk"
	"github.com/spf13/cobra"
)

var csdk sdk.SDK

func SetSDK(s sdk.SDK) {
	csdk = s
}

func NewNodesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes [info|list|discover|status|cluster|health]",
		Short: "Cluster membership",
		Long:  `Inspect the node, its peers and the cluster.`,
	}

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show the node identity",
		Run: func(cmd *cobra.Command, _ []string) {
			n, err := csdk.NodeInfo()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, n)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List known peers",
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := csdk.ListNodes()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	discoverCmd := &cobra.Command{
		Use:   "discover <address> [address...]",
		Short: "Discover peers from seed addresses",
		Long: `Contact each seed and register the nodes that answer.

Examples:
  cohort-cli nodes discover 10.0.0.2:7000 10.0.0.3:7000`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) == 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			outcomes, err := csdk.Discover(args)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, outcomes)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the node status",
		Run: func(cmd *cobra.Command, _ []string) {
			st, err := csdk.Status()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, st)
		},
	}

	clusterCmd := &cobra.Command{
		Use:   "cluster",
		Short: "Show cluster-wide task counters",
		Run: func(cmd *cobra.Command, _ []string) {
			cs, err := csdk.ClusterStatus()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, cs)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check node health",
		Run: func(cmd *cobra.Command, _ []string) {
			h, err := csdk.Health()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	}

	cmd.AddCommand(infoCmd, listCmd, discoverCmd, statusCmd, clusterCmd, healthCmd)

	return cmd
}
