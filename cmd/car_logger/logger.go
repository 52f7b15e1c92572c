// car_logger tails the car's websocket result stream and writes each
// telemetry snapshot to InfluxDB.
package main

import (
	"os"
	"time"

	"github.com/gorilla/websocket"
	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"go.uber.org/zap"

	"github.com/namani/nxtcar/internal/logger"
	"github.com/namani/nxtcar/motor"
)

func main() {
	log := logger.New(zap.InfoLevel)
	defer log.Sync()

	server := os.Getenv("INFLUX_SERVER")
	if server == "" {
		server = "http://localhost:9999"
	}
	client := influxdb2.NewClient(server, os.Getenv("INFLUX_TOKEN"))
	defer client.Close()
	writeApi := client.WriteApi("namani", "nxtcar.telemetry")
	defer writeApi.Close()
	go func() {
		for err := range writeApi.Errors() {
			log.Warnf("write error: %v", err)
		}
	}()

	for {
		if err := logResults(writeApi); err != nil {
			log.Warnf("result stream: %v", err)
		}
		time.Sleep(1 * time.Second)
	}
}

func logResults(writeApi api.WriteApi) error {
	url := os.Getenv("CAR_ADDRESS")
	if url == "" {
		url = "ws://localhost:8502/api/ws"
	}
	defer writeApi.Flush()
	var dialer websocket.Dialer
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	for {
		var res motor.Result
		if err := conn.ReadJSON(&res); err != nil {
			return err
		}
		ts := res.Time
		if ts.IsZero() {
			// First message on the socket is a status snapshot, not
			// a result.
			continue
		}
		p := influxdb2.NewPoint("car.result",
			map[string]string{
				"motor":   res.Motor,
				"command": res.Command,
			},
			map[string]interface{}{
				"tacho_count":       int64(res.Telemetry.TachoCount),
				"block_tacho_count": int64(res.Telemetry.BlockTachoCount),
				"rotation_count":    int64(res.Telemetry.RotationCount),
			},
			ts,
		)
		// write asynchronously
		writeApi.WritePoint(p)
	}
}
