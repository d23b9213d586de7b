package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubertat/gpionet"
)

// parsePinValues reads pin=value pairs.
func parsePinValues(args []string) ([]gpionet.PinState, error) {
	pins := make([]gpionet.PinState, 0, len(args))
	for _, arg := range args {
		pinStr, valueStr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected pin=value, got %q", arg)
		}
		pin, err := parseUint8(pinStr, "pin")
		if err != nil {
			return nil, err
		}
		value, err := parseUint8(valueStr, "value")
		if err != nil {
			return nil, err
		}
		pins = append(pins, gpionet.PinState{ID: pin, Value: value})
	}
	return pins, nil
}

func setCmd(cf *connFlags) *cobra.Command {
	var multi bool

	cmd := &cobra.Command{
		Use:   "set pin=value...",
		Short: "Set output pins",
		Long: `Set one or more output pins. Each pair is sent as its own SET_PIN_SINGLE
command unless --multi packs them into one SET_PIN_MULTI.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pins, err := parsePinValues(args)
			if err != nil {
				return err
			}

			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			b := cf.batch(c)
			if multi {
				if err := b.queued("set "+strings.Join(args, " "), c.SetPins(pins)); err != nil {
					return err
				}
			} else {
				for _, ps := range pins {
					if err := b.queued(fmt.Sprintf("set %d=%d", ps.ID, ps.Value), c.SetPin(ps.ID, ps.Value)); err != nil {
						return err
					}
				}
			}
			return b.done()
		},
	}

	cmd.Flags().BoolVarP(&multi, "multi", "m", false, "send all pins in one command")

	return cmd
}

func getCmd(cf *connFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get pin...",
		Short: "Read pin values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pins := make([]uint8, 0, len(args))
			for _, arg := range args {
				pin, err := parseUint8(arg, "pin")
				if err != nil {
					return err
				}
				pins = append(pins, pin)
			}

			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			values, err := c.GetPins(pins)
			if err != nil {
				return err
			}
			for i, pin := range pins {
				fmt.Printf("%d=%d\n", pin, values[i])
			}
			return nil
		},
	}
}

func waitCmd(cf *connFlags) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait pin=value",
		Short: "Block until a pin reads the given value",
		Long: `Ask the daemon to poll a pin until it reads the given value. The daemon
answers nothing else while it waits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pins, err := parsePinValues(args)
			if err != nil {
				return err
			}

			c, err := cf.connect()
			if err != nil {
				return err
			}
			defer c.Close()

			b := cf.batch(c)
			if err := b.queued("wait "+args[0], c.WaitForPin(pins[0].ID, pins[0].Value, interval)); err != nil {
				return err
			}
			return b.done()
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 10*time.Millisecond, "poll interval")

	return cmd
}
