package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hubertat/gpionet"
)

func nameCmd(cf *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "name",
		Short: "Print the daemon's name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			name, err := c.GetName()
			if err != nil {
				return err
			}
			fmt.Println(name)
			return nil
		},
	}
}

func apiVersionCmd(cf *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "api-version",
		Short: "Print the protocol version the daemon speaks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			v, err := c.GetAPIVersion()
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("  Version:     %s\n", version)
			fmt.Printf("  Commit:      %s\n", commit)
			fmt.Printf("  Protocol:    v%d\n", gpionet.APIVersion)
			fmt.Printf("  Go version:  %s\n", runtime.Version())
		},
	}
}
