package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func writeCmd(cf *connFlags) *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "write [hex]",
		Short: "Write bytes to the daemon's SPI bus",
		Long: `Write bytes to the daemon's byte bus. Give them as hex on the command
line, or with --file (- for stdin) to stream raw bytes.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var data []byte
			var err error
			switch {
			case len(fromFile) > 0:
				data, err = readInput(fromFile)
			case len(args) == 1:
				data, err = hex.DecodeString(strings.TrimPrefix(args[0], "0x"))
			default:
				err = fmt.Errorf("nothing to write, give hex bytes or --file")
			}
			if err != nil {
				return err
			}

			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			b := cf.batch(c)
			if err := b.queued(fmt.Sprintf("wrote %d bytes", len(data)), c.WriteBytes(data)); err != nil {
				return err
			}
			return b.done()
		},
	}

	cmd.Flags().StringVarP(&fromFile, "file", "f", "", "read raw bytes from file, - for stdin")

	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func delayCmd(cf *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delay duration",
		Short: "Make the daemon pause, up to 65535ms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return err
			}

			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			b := cf.batch(c)
			if err := b.queued("delay "+d.String(), c.Delay(d)); err != nil {
				return err
			}
			return b.done()
		},
	}
}
