package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/telatku/telatku/core"
)

// Channel is the Postgres notification channel fed by the tardiness_records trigger.
const Channel = "tardiness_records_changes"

const (
	minReconnectInterval = 10 * time.Second
	maxReconnectInterval = time.Minute
	pingInterval         = 90 * time.Second
)

// Listener relays the notifications of Channel to a Broker.
type Listener struct {
	pql    *pq.Listener
	broker *Broker
	logger core.Logger
}

func NewListener(dsn string, broker *Broker, logger core.Logger) (*Listener, error) {
	report := func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn(fmt.Sprintf("realtime listener event %d: %v", ev, err), err)
		}
	}
	pql := pq.NewListener(dsn, minReconnectInterval, maxReconnectInterval, report)
	if err := pql.Listen(Channel); err != nil {
		_ = pql.Close()
		return nil, errors.Wrap(err, "listening to "+Channel)
	}
	return &Listener{pql: pql, broker: broker, logger: logger}, nil
}

// Run publishes notifications until ctx is done.
func (l *Listener) Run(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return l.pql.Close()
		case n := <-l.pql.Notify:
			if n == nil {
				// connection was re-established; notifications may be lost
				l.broker.Publish(Event{Op: OpResync})
				continue
			}
			ev, err := parseEvent(n.Extra)
			if err != nil {
				l.logger.Warn(fmt.Sprintf("realtime: %v", err), err)
				continue
			}
			l.broker.Publish(ev)
		case <-ticker.C:
			go func() {
				if err := l.pql.Ping(); err != nil {
					l.logger.Warn(fmt.Sprintf("realtime ping: %v", err), err)
				}
			}()
		}
	}
}

func parseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, errors.Wrap(err, "decoding notification payload")
	}
	if ev.Op == "" {
		return Event{}, errors.New("notification without op: " + payload)
	}
	return ev, nil
}
