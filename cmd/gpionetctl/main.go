package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/hubertat/gpionet"
	"github.com/hubertat/gpionet/transport"
)

var (
	version = "dev"
	commit  = "none"
)

// connection flags shared by every command talking to a daemon
type connFlags struct {
	host      string
	port      int
	serial    string
	baud      int
	autoFlush bool
	timeout   time.Duration
	debug     bool
}

func main() {
	cf := &connFlags{}

	rootCmd := &cobra.Command{
		Use:   "gpionetctl",
		Short: "Drive the pins of a remote gpionet daemon",
		Long: `gpionetctl sends protocol commands to a gpionetd daemon over TCP or a
serial line. Write commands given in one invocation are sent as a
single batch and their status bytes are reported together.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cf.debug {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cf.host, "host", "127.0.0.1", "daemon address")
	flags.IntVar(&cf.port, "port", 8080, "daemon tcp port")
	flags.StringVar(&cf.serial, "serial", "", "serial device to use instead of tcp")
	flags.IntVar(&cf.baud, "baud", 115200, "serial baud rate")
	flags.BoolVar(&cf.autoFlush, "auto-flush", false, "send every write command on its own")
	flags.DurationVar(&cf.timeout, "timeout", 5*time.Second, "tcp connect timeout")
	flags.BoolVar(&cf.debug, "debug", false, "log client traffic")

	rootCmd.AddCommand(
		setCmd(cf),
		getCmd(cf),
		writeCmd(cf),
		delayCmd(cf),
		waitCmd(cf),
		nameCmd(cf),
		apiVersionCmd(cf),
		statusCmd(),
		discoverCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

func (cf *connFlags) connect() (*gpionet.Client, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "client",
		Level:  log.GetLevel(),
	})
	opts := []gpionet.ClientOption{
		gpionet.WithClientLogger(logger),
	}

	if len(cf.serial) > 0 {
		conn, err := transport.OpenSerial(transport.SerialConfig{Device: cf.serial, Baud: cf.baud})
		if err != nil {
			return nil, err
		}
		return gpionet.NewClient(conn, opts...), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	return gpionet.Dial(ctx, cf.host, cf.port, opts...)
}

func parseUint8(s, what string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%s %q must be 0-255", what, s)
	}
	return uint8(v), nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
