package gpionet

import (
	"context"
	"strconv"

	"github.com/brutella/dnssd"
	"github.com/pkg/errors"
)

// ServiceType is the DNS-SD service daemons are advertised under.
const ServiceType = "_gpionet._tcp"

func (d *Daemon) serviceConfig(port int) dnssd.Config {
	return dnssd.Config{
		Name:   d.Name,
		Type:   ServiceType,
		Domain: "local",
		Port:   port,
		Text: map[string]string{
			"api": strconv.Itoa(int(APIVersion)),
		},
	}
}

// advertise announces the daemon over mDNS until ctx is done.
func (d *Daemon) advertise(ctx context.Context, port int) error {
	if port == 0 {
		return errors.New("no tcp port to advertise")
	}

	sv, err := dnssd.NewService(d.serviceConfig(port))
	if err != nil {
		return errors.Wrap(err, "failed to create dns-sd service")
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return errors.Wrap(err, "failed to create dns-sd responder")
	}
	_, err = rp.Add(sv)
	if err != nil {
		return errors.Wrap(err, "failed to add dns-sd service")
	}

	go func() {
		err := rp.Respond(ctx)
		if err != nil && ctx.Err() == nil {
			d.logger.Error("dns-sd responder stopped", "err", err)
		}
	}()
	d.logger.Info("advertising", "service", d.Name+"."+ServiceType+".local.", "port", port)
	return nil
}
