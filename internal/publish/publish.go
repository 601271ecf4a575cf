// Package publish hands completed record sets to downstream consumers as
// one JSON document per session on an MQTT topic.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tracklog/internal/host"
)

type Config struct {
	// Broker is e.g. "tcp://localhost:1883".
	Broker string
	// Topic defaults to "tracklog/records".
	Topic string
	// ClientID defaults to "tracklog-host".
	ClientID string
}

type Publisher struct {
	cfg    Config
	client mqtt.Client
}

// Connect dials the broker. Callers treat failure as disabling the
// collaborator, not as fatal.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("publish: broker not configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = "tracklog/records"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "tracklog-host"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("publish: connect %s: %w", cfg.Broker, token.Error())
	}
	return &Publisher{cfg: cfg, client: client}, nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}

// Deliver publishes the session document at QoS 1.
func (p *Publisher) Deliver(ctx context.Context, res *host.Result) error {
	payload, err := Payload(res)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.cfg.Topic, 1, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("publish: timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

type recordDoc struct {
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	Lon        string   `json:"lon,omitempty"`
	Lat        string   `json:"lat,omitempty"`
	SpeedKmh   *float64 `json:"speed_kmh,omitempty"`
	SignalLost bool     `json:"signal_lost,omitempty"`
}

type sessionDoc struct {
	SessionID   string      `json:"session_id"`
	StartedAt   string      `json:"started_at"`
	FinishedAt  string      `json:"finished_at"`
	ExplicitEnd bool        `json:"explicit_end"`
	RecordCount int         `json:"record_count"`
	Records     []recordDoc `json:"records"`
}

// Payload renders one download session as a single JSON document.
func Payload(res *host.Result) ([]byte, error) {
	doc := sessionDoc{
		SessionID:   res.SessionID,
		StartedAt:   res.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:  res.FinishedAt.UTC().Format(time.RFC3339),
		ExplicitEnd: res.Explicit,
		RecordCount: len(res.Records),
		Records:     make([]recordDoc, 0, len(res.Records)),
	}
	for _, rec := range res.Records {
		rd := recordDoc{Date: rec.Date, Time: rec.Time, SignalLost: rec.SignalLost}
		if !rec.SignalLost {
			rd.Lon = rec.Lon
			rd.Lat = rec.Lat
			v := rec.SpeedKmh
			rd.SpeedKmh = &v
		}
		doc.Records = append(doc.Records, rd)
	}
	return json.Marshal(doc)
}
