package gpionet

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const statusTimeoutMs = 3000

// DaemonInfo is served on /info.
type DaemonInfo struct {
	Name       string `json:"name"`
	APIVersion uint8  `json:"api_version"`
	Driver     string `json:"driver"`
	Peer       string `json:"peer,omitempty"`
	Pins       int    `json:"pins"`
}

// StatusHandler serves read-only daemon state: /info, /pins, /pins/:pin_no and
// the Prometheus /metrics. Call after Init.
func (d *Daemon) StatusHandler() http.Handler {
	router := httprouter.New()
	router.GET("/info", d.handleInfo)
	router.GET("/pins", d.handlePins)
	router.GET("/pins/:pin_no", d.handlePin)
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(d.promRegistry, promhttp.HandlerOpts{}))
	return router
}

// ServeStatus runs the status HTTP server on addr until ctx is done.
func (d *Daemon) ServeStatus(ctx context.Context, addr string) error {
	httpTimeout := statusTimeoutMs * time.Millisecond

	server := &http.Server{
		Addr:              addr,
		Handler:           d.StatusHandler(),
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()
	d.logger.Info("status server listening", "addr", addr)

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (d *Daemon) handleInfo(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	info := DaemonInfo{
		Name:       d.Name,
		APIVersion: APIVersion,
		Peer:       d.Peer(),
		Pins:       len(d.registry.Snapshot()),
	}
	if d.driver != nil {
		info.Driver = d.driver.String()
	}
	writeJSON(w, info)
}

func (d *Daemon) handlePins(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	writeJSON(w, d.registry.Snapshot())
}

// handlePin reports the cached state only; reading the driver here would race
// with the connected client.
func (d *Daemon) handlePin(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pinNo, err := strconv.ParseUint(p.ByName("pin_no"), 10, 8)
	if err != nil {
		http.Error(w, "pin number must be 0-255", http.StatusBadRequest)
		return
	}

	ps, ok := d.registry.Lookup(uint8(pinNo))
	if !ok {
		http.Error(w, "pin not referenced yet", http.StatusNotFound)
		return
	}
	writeJSON(w, ps)
}
