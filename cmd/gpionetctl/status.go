package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubertat/gpionet"
)

func statusCmd() *cobra.Command {
	var statusURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state from its status endpoint",
		Long: `Read /info and /pins from the daemon's status HTTP server. This works
while another client is connected to the protocol port.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := gpionet.NewStatusClient(statusURL)

			info, err := sc.Info(cmd.Context())
			if err != nil {
				return err
			}
			pins, err := sc.Pins(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("  Name:    %s\n", info.Name)
			fmt.Printf("  API:     v%d\n", info.APIVersion)
			fmt.Printf("  Driver:  %s\n", info.Driver)
			if len(info.Peer) > 0 {
				fmt.Printf("  Client:  %s\n", info.Peer)
			}
			for _, ps := range pins {
				fmt.Printf("  pin %3d = %d\n", ps.ID, ps.Value)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&statusURL, "url", "u", "http://127.0.0.1:9100", "status server base url")

	return cmd
}
