package alerts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/biovault/document-agent/pkg/metrics"
)

const (
	queueCapacity  = 100
	webhookTimeout = 10 * time.Second
	closeTimeout   = 5 * time.Second
)

// Alert is the escalation payload written to the log and POSTed to the
// webhook.
type Alert struct {
	Event      string `json:"event"`
	Timestamp  string `json:"timestamp"`
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	FlagID     uint   `json:"flag_id"`
	FlagType   string `json:"flag_type"`
	Severity   string `json:"severity"`
	Details    string `json:"details"`
	Action     string `json:"action"`
	Source     string `json:"source"`
}

// Dispatcher performs the autonomous escalation actions for critical flags:
// a structured log line always, plus an async webhook POST when a URL is
// configured. Dispatch never blocks the caller and delivery failures are
// never fatal.
type Dispatcher struct {
	webhookURL string
	client     *http.Client
	queue      chan Alert
	stop       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
}

func NewDispatcher(webhookURL string) *Dispatcher {
	d := &Dispatcher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: webhookTimeout},
		queue:      make(chan Alert, queueCapacity),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.deliveryLoop()
	return d
}

// Dispatch logs the alert and, if a webhook is configured, enqueues it for
// delivery. A full queue drops the webhook delivery, not the log line.
func (d *Dispatcher) Dispatch(documentID uuid.UUID, filename string, flagID uint, flagType, severity, details string) {
	alert := Alert{
		Event:      "BIOVAULT_SAFETY_ALERT",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		DocumentID: documentID.String(),
		Filename:   filename,
		FlagID:     flagID,
		FlagType:   flagType,
		Severity:   severity,
		Details:    details,
		Action:     "autonomous_escalation",
		Source:     "biovault-agent",
	}

	payload, _ := json.Marshal(alert)
	zap.S().Named("alerts").Warnf("AUTONOMOUS_ALERT %s", string(payload))

	if d.webhookURL == "" {
		return
	}
	// The queue channel is never closed, so a dispatch racing Close cannot
	// panic; it is dropped once shutdown has started.
	select {
	case <-d.stop:
		zap.S().Named("alerts").Warnf("dispatcher closed, dropping webhook delivery for flag %d", flagID)
		metrics.IncreaseAlertDeliveriesMetric("dropped")
	case d.queue <- alert:
	default:
		zap.S().Named("alerts").Warnf("alert queue full, dropping webhook delivery for flag %d", flagID)
		metrics.IncreaseAlertDeliveriesMetric("dropped")
	}
}

// Close stops accepting alerts and waits a bounded time for in-flight
// deliveries to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.stop)
	})
	select {
	case <-d.done:
	case <-time.After(closeTimeout):
		zap.S().Named("alerts").Warn("timed out draining alert queue")
	}
}

func (d *Dispatcher) deliveryLoop() {
	defer close(d.done)
	for {
		select {
		case alert := <-d.queue:
			d.post(alert)
		case <-d.stop:
			for {
				select {
				case alert := <-d.queue:
					d.post(alert)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) post(alert Alert) {
	body, err := json.Marshal(alert)
	if err != nil {
		zap.S().Named("alerts").Errorf("failed to marshal alert: %v", err)
		return
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		zap.S().Named("alerts").Warnf("webhook POST failed (non-fatal): %v", err)
		metrics.IncreaseAlertDeliveriesMetric("failed")
		return
	}
	defer resp.Body.Close()

	zap.S().Named("alerts").Infof("webhook posted: url=%s status=%d", d.webhookURL, resp.StatusCode)
	metrics.IncreaseAlertDeliveriesMetric("delivered")
}
