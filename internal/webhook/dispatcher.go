// Package webhook delivers session events to a configured external
// endpoint as fire-and-forget HTTP notifications.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/chat-gateway/backend/internal/model"
)

const (
	// queueSize bounds the delivery backlog. A full queue drops events
	// rather than backpressuring the event router.
	queueSize = 256

	defaultTimeout = 10 * time.Second
)

// notification is the wire body of a webhook call.
type notification struct {
	DataType  string      `json:"dataType"`
	Data      interface{} `json:"data"`
	SessionID string      `json:"sessionId"`
}

// Dispatcher posts events to a single external endpoint, authenticated
// with a shared API key header. Delivery is at-most-once: failures are
// logged and the event is dropped, and a slow endpoint never blocks the
// event producer. A single worker drains the queue, which preserves the
// order events were enqueued in.
type Dispatcher struct {
	url    string
	apiKey string
	client *http.Client

	queue chan model.Event
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a Dispatcher for the given endpoint. An empty
// url disables delivery entirely.
func NewDispatcher(url, apiKey string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	d := &Dispatcher{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		queue:  make(chan model.Event, queueSize),
	}

	if d.url != "" {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Deliver enqueues an event for asynchronous delivery. It never blocks:
// when the queue is full, or the Dispatcher is closed, the event is
// dropped.
func (d *Dispatcher) Deliver(event model.Event) {
	if d.url == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	select {
	case d.queue <- event:
	default:
		log.Printf("webhook queue full, dropping %s event for session %s", event.Type, event.SessionID)
	}
}

// Close stops the worker after the queued events have been attempted.
// Events delivered after Close are silently dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for event := range d.queue {
		if err := d.post(event); err != nil {
			log.Printf("webhook delivery failed for session %s: %v", event.SessionID, err)
		}
	}
}

func (d *Dispatcher) post(event model.Event) error {
	body, err := json.Marshal(notification{
		DataType:  string(event.Type),
		Data:      event.Payload,
		SessionID: event.SessionID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-Api-Key", d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
