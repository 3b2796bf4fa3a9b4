package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

// ChangeAudit is the record published for every accepted document change.
// The audit stream is observability, not delivery: losing an entry under
// sustained broker trouble is acceptable.
type ChangeAudit struct {
	EventType     string    `json:"eventType"` // fixed "DOCUMENT_CHANGE"
	DocID         string    `json:"docId"`
	ParticipantID string    `json:"participantId"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}

// Dispatcher pushes audit records to Kafka through a bounded local queue and
// worker goroutines with bounded retry. Submission never blocks the message
// path; a full queue drops.
type Dispatcher struct {
	producer sarama.SyncProducer
	topic    string
	queue    chan ChangeAudit
	sem      *Semaphore
	log      zerolog.Logger

	workers     int
	maxRetry    int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type DispatcherOptions struct {
	QueueSize   int
	Workers     int
	MaxRetry    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func NewDispatcher(producer sarama.SyncProducer, topic string, sem *Semaphore, opt DispatcherOptions, log zerolog.Logger) *Dispatcher {
	if opt.QueueSize <= 0 {
		opt.QueueSize = 10_000
	}
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.BaseBackoff <= 0 {
		opt.BaseBackoff = 50 * time.Millisecond
	}
	if opt.MaxBackoff <= 0 {
		opt.MaxBackoff = time.Second
	}
	d := &Dispatcher{
		producer:    producer,
		topic:       topic,
		queue:       make(chan ChangeAudit, opt.QueueSize),
		sem:         sem,
		log:         log.With().Str("component", "audit-dispatcher").Logger(),
		workers:     opt.Workers,
		maxRetry:    opt.MaxRetry,
		baseBackoff: opt.BaseBackoff,
		maxBackoff:  opt.MaxBackoff,
	}
	d.start()
	return d
}

// Enqueue offers a record to the queue, dropping when full.
func (d *Dispatcher) Enqueue(rec ChangeAudit) {
	select {
	case d.queue <- rec:
	default:
		d.log.Warn().Str("docId", rec.DocID).Msg("audit queue full, dropping record")
	}
}

func (d *Dispatcher) start() {
	for i := 0; i < d.workers; i++ {
		go d.workerLoop(i)
	}
}

func (d *Dispatcher) workerLoop(workerID int) {
	for rec := range d.queue {
		d.sendWithRetry(workerID, rec)
	}
}

func (d *Dispatcher) sendWithRetry(workerID int, rec ChangeAudit) {
	for attempt := 0; attempt <= d.maxRetry; attempt++ {
		if d.sem != nil {
			// workers may wait indefinitely; they are off the message path
			_ = d.sem.Acquire(context.Background())
		}
		err := d.sendOnce(rec)
		if d.sem != nil {
			_ = d.sem.Release()
		}
		if err == nil {
			return
		}
		if attempt == d.maxRetry {
			d.log.Warn().Err(err).
				Str("docId", rec.DocID).
				Int("worker", workerID).
				Msg("audit send failed, dropping record")
			return
		}
		backoff := d.baseBackoff * time.Duration(1<<attempt)
		if backoff > d.maxBackoff {
			backoff = d.maxBackoff
		}
		time.Sleep(backoff)
	}
}

func (d *Dispatcher) sendOnce(rec ChangeAudit) error {
	if d.producer == nil || d.topic == "" {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.topic,
		// keyed by document so one doc's audit trail stays in one partition
		Key:   sarama.StringEncoder(rec.DocID),
		Value: sarama.ByteEncoder(b),
	}
	_, _, err = d.producer.SendMessage(msg)
	return err
}
