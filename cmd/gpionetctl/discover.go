package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brutella/dnssd"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/hubertat/gpionet"
)

func discoverCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List daemons advertised on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			found := 0
			add := func(e dnssd.BrowseEntry) {
				found++
				addr := e.Host
				if len(e.IPs) > 0 {
					addr = e.IPs[0].String()
				}
				fmt.Printf("%-24s %s:%d api=%s\n", e.Name, addr, e.Port, e.Text["api"])
			}
			rmv := func(e dnssd.BrowseEntry) {}

			err := dnssd.LookupType(ctx, gpionet.ServiceType+".local.", add, rmv)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return err
			}
			if found == 0 {
				fmt.Println("no daemons found")
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&wait, "wait", "w", 3*time.Second, "how long to listen for announcements")

	return cmd
}
