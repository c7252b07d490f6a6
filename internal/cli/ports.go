package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newPortsCmd(s *settings) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List available serial ports",
		Long: `List the serial devices currently present on the system.

USB adapters are shown with their product name and vid:pid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := s.listPorts(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(ports)
			}

			if len(ports) == 0 {
				fmt.Fprintln(out, "No serial ports found")
				return nil
			}
			for _, p := range ports {
				if p.Description != "" {
					fmt.Fprintf(out, "%s\t%s\n", p.Name, p.Description)
				} else {
					fmt.Fprintln(out, p.Name)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print ports as JSON")
	return cmd
}
