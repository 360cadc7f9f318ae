package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/absmach/cohort/pkg/payload"
	"github.com/spf13/cobra"
)

var errUnknownKind = errors.New("kind must be one of opaque, json or wasm")

func NewTasksCmd() *cobra.Command {
	var (
		kind     string
		function string
		args     []uint
	)

	cmd := &cobra.Command{
		Use:   "tasks [dispatch]",
		Short: "Task dispatch",
		Long:  `Dispatch tasks to the least loaded node of the cluster.`,
	}

	dispatchCmd := &cobra.Command{
		Use:   "dispatch <data|file>",
		Short: "Dispatch a task",
		Long: `Dispatch a task and wait for its result.

Examples:
  # Echo an opaque payload
  cohort-cli tasks dispatch hello

  # Send a JSON document
  cohort-cli tasks dispatch --kind json '{"n": 2}'

  # Run a WebAssembly function
  cohort-cli tasks dispatch --kind wasm --function add --args 2,40 add.wasm`,
		Run: func(cmd *cobra.Command, cargs []string) {
			if len(cargs) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			var p payload.Payload
			switch payload.Kind(kind) {
			case payload.KindOpaque:
				p = payload.Opaque([]byte(cargs[0]))
			case payload.KindJSON:
				p = payload.Payload{Kind: payload.KindJSON, Value: json.RawMessage(cargs[0])}
			case payload.KindWasm:
				module, err := os.ReadFile(cargs[0])
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				wargs := make([]uint64, len(args))
				for i, a := range args {
					wargs[i] = uint64(a)
				}
				p = payload.Wasm(module, function, wargs...)
			default:
				logErrorCmd(*cmd, errUnknownKind)

				return
			}

			res, err := csdk.Dispatch(p)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, res)
		},
	}

	dispatchCmd.Flags().StringVar(&kind, "kind", string(payload.KindOpaque), "Payload kind: opaque, json or wasm")
	dispatchCmd.Flags().StringVar(&function, "function", "", "Exported function to call for wasm payloads")
	dispatchCmd.Flags().UintSliceVar(&args, "args", nil, "Arguments for the wasm function (comma-separated)")

	cmd.AddCommand(dispatchCmd)

	return cmd
}
