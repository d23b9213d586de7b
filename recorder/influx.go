package recorder

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

const defaultMeasurement = "pin_state"

// InfluxRecorder writes every pin change as a point tagged with the device
// name and pin number.
type InfluxRecorder struct {
	Host         string
	Token        string
	Organization string
	Bucket       string
	Measurement  string
	Device       string

	client   influxdb2.Client
	writeApi api.WriteAPIBlocking
}

func (ir *InfluxRecorder) Setup(ctx context.Context) error {
	if len(ir.Host) == 0 || len(ir.Bucket) == 0 {
		return errors.New("influx recorder needs Host and Bucket")
	}
	if len(ir.Measurement) == 0 {
		ir.Measurement = defaultMeasurement
	}

	ir.client = influxdb2.NewClient(ir.Host, ir.Token)
	ok, err := ir.client.Ready(ctx)
	if err != nil {
		return errors.Wrapf(err, "failed to reach influx at %s", ir.Host)
	}
	if !ok {
		return errors.Errorf("influx at %s not ready", ir.Host)
	}
	ir.writeApi = ir.client.WriteAPIBlocking(ir.Organization, ir.Bucket)
	return nil
}

// Point builds the point recorded for a pin change.
func (ir *InfluxRecorder) Point(pin, value uint8, ts time.Time) *write.Point {
	measurement := ir.Measurement
	if len(measurement) == 0 {
		measurement = defaultMeasurement
	}

	return influxdb2.NewPoint(
		measurement,
		map[string]string{
			"device": ir.Device,
			"pin":    strconv.Itoa(int(pin)),
		},
		map[string]interface{}{
			"value": int(value),
		},
		ts,
	)
}

func (ir *InfluxRecorder) PinChanged(ctx context.Context, pin, value uint8) error {
	if ir.writeApi == nil {
		return errors.New("influx recorder not set up")
	}

	err := ir.writeApi.WritePoint(ctx, ir.Point(pin, value, time.Now()))
	if err != nil {
		return errors.Wrapf(err, "failed to write pin %d state", pin)
	}
	return nil
}

func (ir *InfluxRecorder) Close() {
	if ir.client != nil {
		ir.client.Close()
	}
}
