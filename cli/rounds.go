package cli

import (
	"encoding/json"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/spf13/cobra"
)

func NewRoundsCmd() *cobra.Command {
	var (
		required int
		config   string
		method   string
	)

	cmd := &cobra.Command{
		Use:   "rounds [start|current|abandon|history|aggregate|model]",
		Short: "Federated learning rounds",
		Long:  `Start, inspect, abandon and aggregate training rounds on the coordinator.`,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a training round",
		Long: `Invite every worker to a new round.

Examples:
  cohort-cli rounds start --required 2 --config '{"dimensions": 4}'`,
		Run: func(cmd *cobra.Command, _ []string) {
			rc := coordinator.RoundConfig{RequiredParticipants: required}
			if config != "" {
				if err := json.Unmarshal([]byte(config), &rc.Config); err != nil {
					logErrorCmd(*cmd, err)

					return
				}
			}

			init, err := csdk.StartRound(rc)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, init)
		},
	}
	startCmd.Flags().IntVar(&required, "required", 0, "Updates needed before aggregation; 0 means every worker")
	startCmd.Flags().StringVar(&config, "config", "", "Round configuration as a JSON object")

	currentCmd := &cobra.Command{
		Use:   "current",
		Short: "Show the current round",
		Run: func(cmd *cobra.Command, _ []string) {
			r, err := csdk.CurrentRound()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	abandonCmd := &cobra.Command{
		Use:   "abandon",
		Short: "Abandon the current round",
		Run: func(cmd *cobra.Command, _ []string) {
			r, err := csdk.AbandonRound()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List completed rounds",
		Run: func(cmd *cobra.Command, _ []string) {
			h, err := csdk.RoundHistory()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, h)
		},
	}

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate the collected updates",
		Run: func(cmd *cobra.Command, _ []string) {
			m, err := csdk.Aggregate(fl.Method(method))
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}
	aggregateCmd.Flags().StringVar(&method, "method", "", "federated_averaging or weighted_averaging; empty uses the node default")

	modelCmd := &cobra.Command{
		Use:   "model",
		Short: "Show the published global model",
		Run: func(cmd *cobra.Command, _ []string) {
			m, err := csdk.GlobalModel()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, m)
		},
	}

	cmd.AddCommand(startCmd, currentCmd, abandonCmd, historyCmd, aggregateCmd, modelCmd)

	return cmd
}
