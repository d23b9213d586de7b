package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/hubertat/servicemaker"

	"github.com/hubertat/gpionet"
)

var (
	Version string
	Build   string

	config      = flag.String("config", "config.json", "path of the configuration file")
	flagInstall = flag.Bool("install", false, "Install service in os")
	flagDebug   = flag.Bool("debug", false, "log every decoded command")

	gpionetService = servicemaker.ServiceMaker{
		User:               "gpionet",
		UserGroups:         []string{"gpio", "spi", "dialout"},
		ServicePath:        "/etc/systemd/system/gpionetd.service",
		ServiceDescription: "gpionetd: remote GPIO and SPI access over TCP or serial. github.com/hubertat/gpionet",
		ExecDir:            "/srv/gpionet",
		ExecName:           "gpionetd",
	}
)

func main() {
	flag.Parse()
	log.Info("gpionetd started", "version", Version, "build", Build)

	if *flagInstall {
		err := gpionetService.InstallService()
		if err != nil {
			log.Fatal("failed to install service", "err", err)
		}
		log.Info("service installed!")
		return
	}

	configFile, err := os.Open(*config)
	if err != nil {
		log.Fatal("can't find/open config file, will terminate", "path", *config, "err", err)
	}
	daemon, err := gpionet.LoadConfig(configFile)
	configFile.Close()
	if err != nil {
		log.Fatal("failed reading config file", "path", *config, "err", err)
	}
	if *flagDebug {
		daemon.Debug = true
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = daemon.Init(ctx)
	defer daemon.Close()
	if err != nil {
		log.Fatal("failed to init daemon", "err", err)
	}

	daemon.PrintStatus(os.Stdout)

	err = daemon.Run(ctx)
	if err != nil {
		log.Error("daemon stopped", "err", err)
	}
}
