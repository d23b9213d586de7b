package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"

	"github.com/hubertat/gpionet"
	"github.com/hubertat/gpionet/drivers"
)

var (
	Version string
	Build   string

	port       = flag.Int("port", 8080, "tcp port to listen on")
	statusAddr = flag.String("status", ":9100", "status http address, empty disables")
	advertise  = flag.Bool("advertise", false, "announce over dns-sd")
)

func main() {
	flag.Parse()

	log.Info("gpionet mock started", "version", Version)
	log.Info("mock instance for testing purposes, pins live in memory")

	mock := &drivers.MockDriver{}
	daemon := &gpionet.Daemon{
		Name:       "Mock server",
		Port:       *port,
		StatusAddr: *statusAddr,
		Advertise:  *advertise,
		Debug:      true,
		Mock:       mock,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	err := daemon.Init(ctx)
	defer daemon.Close()
	if err != nil {
		log.Fatal("failed to init mock daemon", "err", err)
	}

	mock.MonitorStateChanges(os.Stdout)
	daemon.PrintStatus(os.Stdout)

	err = daemon.Run(ctx)
	if err != nil {
		log.Error("mock daemon stopped", "err", err)
	}
}
