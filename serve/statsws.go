package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	// Time allowed to write message to the client
	writeWait  = 10 * time.Second
	pingPeriod = 10 * time.Second

	DefaultUpdatePeriod = time.Second
)

// StatsUpdater pushes a stats snapshot to every connected websocket client
// once per period.
type StatsUpdater struct {
	stats    *StatsServer
	period   time.Duration
	log      log.FieldLogger
	upgrader websocket.Upgrader

	cs     map[chan []byte]bool
	addc   chan chan []byte
	delc   chan chan []byte
	notify chan []byte
	done   chan struct{}
}

// NewStatsUpdater starts the broadcast loop, which runs until ctx is done.
func NewStatsUpdater(ctx context.Context, stats *StatsServer, period time.Duration, logger log.FieldLogger) *StatsUpdater {
	if period <= 0 {
		period = DefaultUpdatePeriod
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	m := &StatsUpdater{
		stats:  stats,
		period: period,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		cs:     make(map[chan []byte]bool),
		addc:   make(chan chan []byte),
		delc:   make(chan chan []byte),
		notify: make(chan []byte),
		done:   make(chan struct{}),
	}
	go m.broadcast()
	go m.tick(ctx)
	return m
}

func (m *StatsUpdater) broadcast() {
	for {
		select {
		case <-m.done:
			for c := range m.cs {
				close(c)
			}
			return
		case c := <-m.addc:
			m.cs[c] = true
		case c := <-m.delc:
			delete(m.cs, c)
		case msg := <-m.notify:
			for c := range m.cs {
				// A client that is still busy with the last snapshot skips this one.
				select {
				case c <- msg:
				default:
				}
			}
		}
	}
}

func (m *StatsUpdater) tick(ctx context.Context) {
	t := time.NewTicker(m.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			close(m.done)
			return
		case <-t.C:
			m.Update()
		}
	}
}

// Update sends a fresh snapshot to every client now.
func (m *StatsUpdater) Update() {
	js, err := json.Marshal(m.stats.BuildResponse())
	if err != nil {
		m.log.Errorf("Failed to encode stats: %v", err)
		return
	}
	select {
	case m.notify <- js:
	case <-m.done:
	}
}

func (m *StatsUpdater) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if _, ok := err.(websocket.HandshakeError); !ok {
			m.log.WithField("addr", r.RemoteAddr).Errorf("Websocket handshake failed for stats stream: %v", err)
		}
		return
	}
	go m.serve(ws)
}

func (m *StatsUpdater) serve(ws *websocket.Conn) {
	clog := m.log.WithField("addr", ws.RemoteAddr())
	clog.Info("connected to stats socket")
	defer func() {
		ws.Close()
		clog.Info("disconnected from stats socket")
	}()
	pingTicker := time.NewTicker(pingPeriod)
	defer pingTicker.Stop()

	notifyc := make(chan []byte, 1)
	select {
	case m.addc <- notifyc:
	case <-m.done:
		return
	}
	defer func() {
		select {
		case m.delc <- notifyc:
		case <-m.done:
		}
	}()

	// Even though we don't care about incoming messages, we need to read from
	// the socket in order to process control messages.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-notifyc:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-pingTicker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}
