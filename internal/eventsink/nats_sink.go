/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package eventsink

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// EventPublisher is the connection dependency NATSSink needs, narrowed to
// Publish/Close so it can be unit-tested without a live NATS server.
type EventPublisher interface {
	Publish(subject string, data []byte) error
	Close()
}

// natsConnAdapter adapts *nats.Conn to EventPublisher.
type natsConnAdapter struct {
	conn *nats.Conn
}

func (a natsConnAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a natsConnAdapter) Close() {
	a.conn.Close()
}

// NATSSink publishes each event as JSON to latencytest.<runID>.<kind>.
type NATSSink struct {
	conn EventPublisher
}

// NewNATSSink connects to natsURL, retrying a few times before giving up.
func NewNATSSink(natsURL string) (*NATSSink, error) {
	var nc *nats.Conn
	var err error
	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(natsURL)
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/5): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("eventsink: connect to NATS after 5 attempts: %w", err)
	}
	log.Printf("✅ Connected to NATS at %s", natsURL)
	return &NATSSink{conn: natsConnAdapter{conn: nc}}, nil
}

// NewNATSSinkWithConnection builds a NATSSink over an existing connection
// (for testing with a fake EventPublisher).
func NewNATSSinkWithConnection(conn EventPublisher) *NATSSink {
	return &NATSSink{conn: conn}
}

// Close releases the underlying connection.
func (s *NATSSink) Close() {
	s.conn.Close()
}

func (s *NATSSink) publish(runID, kind string, evt runEvent) {
	evt.RunID = runID
	evt.Kind = kind
	evt.Time = time.Now()
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("❌ eventsink: marshal %s event: %v", kind, err)
		return
	}
	subject := fmt.Sprintf("latencytest.%s.%s", runID, kind)
	if err := s.conn.Publish(subject, data); err != nil {
		log.Printf("❌ eventsink: publish %s: %v", subject, err)
	}
}

// OnConfig implements Sink.
func (s *NATSSink) OnConfig(runID, outputCfg, inputCfg string) {
	s.publish(runID, "config", runEvent{OutputCfg: outputCfg, InputCfg: inputCfg})
}

// OnDetecting implements Sink.
func (s *NATSSink) OnDetecting(runID string) {
	s.publish(runID, "detecting", runEvent{})
}

// OnCompleted implements Sink.
func (s *NATSSink) OnCompleted(runID, outputPath string, rc int, avgDelayMs float64, top3 []CandidatePair) {
	s.publish(runID, "completed", runEvent{
		OutputPath: outputPath,
		ReturnCode: rc,
		AvgDelayMs: avgDelayMs,
		Top3:       top3,
	})
}

// OnError implements Sink.
func (s *NATSSink) OnError(runID, message string, code int) {
	s.publish(runID, "error", runEvent{Message: message, ErrorCode: code})
}
