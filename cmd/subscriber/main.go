// VitalStream subscriber is a small websocket client that connects to a
// running server, subscribes to one patient's live telemetry, and prints each
// reading as it arrives. Useful for smoke-testing a deployment.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1broseidon/vitalstream/pkg/vitals"
)

func main() {
	server := flag.String("server", "localhost:8080", "VitalStream server host:port")
	patient := flag.String("patient", "demo", "Patient identifier to stream")
	count := flag.Int("count", 0, "Number of readings to print before exiting (0 = until interrupted)")
	flag.Parse()

	endpoint := url.URL{
		Scheme:   "ws",
		Host:     *server,
		Path:     "/ws",
		RawQuery: url.Values{"patientId": {*patient}}.Encode(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", endpoint.String(), err)
	}
	defer conn.Close()

	log.Printf("Connected to %s, streaming patient %q", endpoint.String(), *patient)

	// Close the connection on interrupt; the read loop then unblocks with an
	// error and the process exits.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-interrupt
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	received := 0
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			log.Fatalf("Read failed: %v", err)
		}

		var reading vitals.Reading
		if err := json.Unmarshal(payload, &reading); err != nil {
			log.Printf("Skipping malformed reading: %v", err)
			continue
		}

		printReading(reading)

		received++
		if *count > 0 && received >= *count {
			return
		}
	}
}

func printReading(r vitals.Reading) {
	bp := "-"
	if r.BloodPressure != nil {
		bp = fmt.Sprintf("%d/%d", r.BloodPressure.Systolic, r.BloodPressure.Diastolic)
	}
	fmt.Printf("%s  %s  temp=%.1f  hr=%d  bp=%s  spo2=%d  rr=%d  glucose=%.1f\n",
		r.Timestamp.Format(time.RFC3339),
		r.PatientID,
		r.Temperature,
		r.HeartRate,
		bp,
		r.OxygenSaturation,
		r.RespiratoryRate,
		r.BloodGlucose,
	)
}
