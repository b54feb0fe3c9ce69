package natspub

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"agora/internal/pipeline"
)

// Publisher forwards pipeline status events to a NATS subject so external
// observers (dashboards, recorders) can follow runs. Publishing is
// best-effort; a failed publish never affects the run.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func New(url, subject string, logger *slog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("agora-pipeline"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &Publisher{conn: conn, subject: subject, logger: logger}, nil
}

// Observer returns the pipeline observer that publishes each event.
func (p *Publisher) Observer() pipeline.Observer {
	return func(ev pipeline.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			p.logger.Warn("marshaling status event", "error", err)
			return
		}
		if err := p.conn.Publish(p.subject, data); err != nil {
			p.logger.Warn("publishing status event", "error", err)
		}
	}
}

func (p *Publisher) Close() {
	p.conn.Drain()
}
