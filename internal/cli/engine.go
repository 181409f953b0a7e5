package cli

import "github.com/spf13/cobra"

// NewEngineCmd создаёт группу команд для движков.
func NewEngineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Inspect execution engines",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List engines registered on the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := clientFn().ListEngines()
			if err != nil {
				return err
			}

			rows := make([][]string, len(names))
			for i, n := range names {
				rows[i] = []string{n}
			}
			outputFn().Print([]string{"NAME"}, rows, names)
			return nil
		},
	})

	return cmd
}
