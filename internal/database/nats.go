package database

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// ConnectNATS dials the event broker. An empty URL is allowed and returns a
// nil connection; publishing then degrades to a no-op.
func ConnectNATS(url string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}

	conn, err := nats.Connect(url, nats.Name("proctorly-exam-api"))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to nats: %w", err)
	}

	return conn, nil
}
