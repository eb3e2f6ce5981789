package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/gzhole/memscope/internal/logger"
	"github.com/gzhole/memscope/internal/telemetry"
)

const (
	DefaultSubjectPrefix = "memscope.results"
	ConnectTimeout       = 10 * time.Second
)

// MsgPublisher is the part of *nats.Conn the publisher needs.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Publisher sends validated result documents to
// "<prefix>.<kind>", e.g. memscope.results.analysis.
type Publisher struct {
	conn    MsgPublisher
	closer  func()
	prefix  string
	log     logrus.FieldLogger
	metrics *telemetry.Metrics
}

// Connect dials url and returns a publisher owning the connection.
func Connect(url, prefix string, log logrus.FieldLogger, metrics *telemetry.Metrics) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Timeout(ConnectTimeout), nats.Name("memscope"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	p := NewPublisher(nc, prefix, log, metrics)
	p.closer = nc.Close
	return p, nil
}

func NewPublisher(conn MsgPublisher, prefix string, log logrus.FieldLogger, metrics *telemetry.Metrics) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Publisher{conn: conn, prefix: prefix, log: log, metrics: metrics}
}

func (p *Publisher) Subject(kind Kind) string {
	return p.prefix + "." + string(kind)
}

// Publish validates v and publishes it. headers are attached to the
// message as-is (run id, OS type).
func (p *Publisher) Publish(ctx context.Context, kind Kind, v interface{}, headers map[string]string) (err error) {
	defer func() { p.metrics.ObserveSink("nats", err) }()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", kind, err)
	}
	if err := Validate(kind, data); err != nil {
		return err
	}

	msg := nats.NewMsg(p.Subject(kind))
	msg.Data = data
	for k, val := range headers {
		msg.Header.Set(k, val)
	}
	msg.Header.Set("x-document-kind", string(kind))

	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish %s document: %w", kind, err)
	}
	p.log.WithFields(logrus.Fields{"subject": msg.Subject, "bytes": len(data)}).Debug("result published")
	return nil
}

// Close closes the connection when the publisher owns it.
func (p *Publisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}
