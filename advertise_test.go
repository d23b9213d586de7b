package gpionet

import (
	"context"
	"testing"
)

func TestServiceConfig(t *testing.T) {
	d := &Daemon{Name: "epaper"}

	cfg := d.serviceConfig(8080)
	if cfg.Name != "epaper" || cfg.Type != ServiceType || cfg.Domain != "local" {
		t.Errorf("unexpected service config %+v", cfg)
	}
	assertInts(t, cfg.Port, 8080)
	if cfg.Text["api"] != "2" {
		t.Errorf("got api txt %q, want 2", cfg.Text["api"])
	}
}

func TestAdvertiseNeedsPort(t *testing.T) {
	d := &Daemon{Name: "serial", logger: quietLogger}

	if err := d.advertise(context.Background(), 0); err == nil {
		t.Error("expected error advertising without a port")
	}
}
