package cli

import (
	"context"

	"github.com/absmach/cohort/pkg/events"
	"github.com/spf13/cobra"
)

// Watcher streams cluster events to fn until ctx is done.
type Watcher func(ctx context.Context, fn func(events.Event) error, kinds ...events.Kind) error

var watcher Watcher

func SetWatcher(w Watcher) {
	watcher = w
}

func NewEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [watch]",
		Short: "Cluster events",
		Long:  `Follow the events nodes publish to the MQTT broker.`,
	}

	watchCmd := &cobra.Command{
		Use:   "watch [kind...]",
		Short: "Print events as they are published",
		Long: `Print events as they are published, optionally only the given kinds:
node.discovered, node.pruned, round.started, round.ready, round.abandoned, aggregation.complete.`,
		Run: func(cmd *cobra.Command, args []string) {
			kinds := make([]events.Kind, 0, len(args))
			for _, a := range args {
				kinds = append(kinds, events.Kind(a))
			}

			err := watcher(cmd.Context(), func(e events.Event) error {
				logJSONCmd(*cmd, e)

				return nil
			}, kinds...)
			if err != nil {
				logErrorCmd(*cmd, err)
			}
		},
	}

	cmd.AddCommand(watchCmd)

	return cmd
}
