package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/namani/nxtcar/car"
	"github.com/namani/nxtcar/motor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server publishes command results and accepts motor commands over
// HTTP. Commands go through the car's serializers like any other
// caller.
type Server struct {
	log *zap.SugaredLogger
	car *car.Car

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	seq        uint64
	last       motor.Result
}

func newServer(log *zap.SugaredLogger) *Server {
	s := &Server{log: log.Named("http")}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	return r
}

// resultCallback is subscribed to the car's result sink.
func (s *Server) resultCallback(res motor.Result) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	s.last = res
	s.seq++
	s.statusCond.Broadcast()
}

type statusPayload struct {
	Power      int          `json:"power"`
	Motors     []string     `json:"motors"`
	LastResult motor.Result `json:"last_result"`
}

func (s *Server) status() statusPayload {
	s.statusMu.RLock()
	last := s.last
	s.statusMu.RUnlock()
	return statusPayload{
		Power:      s.car.Power().Load(),
		Motors:     s.car.Motors(),
		LastResult: last,
	}
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(s.status())
	if err != nil {
		s.log.Warnf("marshaling status: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// Command is one websocket command message.
type Command struct {
	Command string `json:"command"`
	Motor   string `json:"motor"`
	Power   int    `json:"power"`
	Degrees int    `json:"degrees"`
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("upgrading: %v", err)
		return
	}
	defer conn.Close()

	// Read and apply incoming commands.
	go func() {
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				cancel()
				return
			}
			s.apply(msg)
		}
	}()
	// The writer below sleeps on the cond; wake it when the
	// connection goes away.
	go func() {
		<-ctx.Done()
		s.statusCond.Broadcast()
	}()

	if err := conn.WriteJSON(s.status()); err != nil {
		return
	}
	var lastSeq uint64
	for {
		s.statusMu.RLock()
		for s.seq == lastSeq && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		res := s.last
		lastSeq = s.seq
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
		if err := conn.WriteJSON(res); err != nil {
			return
		}
	}
}

// apply maps a websocket message onto a serializer call. Apply blocks
// until the command has executed; its result also reaches this server
// again through the sink.
func (s *Server) apply(msg Command) {
	m, ok := s.car.Motor(msg.Motor)
	if !ok {
		s.log.Warnf("command for unknown motor %q", msg.Motor)
		return
	}
	var cmd motor.Command
	switch msg.Command {
	case "start":
		power := msg.Power
		if power == 0 {
			power = s.car.Power().Load()
		}
		cmd = motor.Start{Power: power}
	case "stop":
		cmd = motor.Stop{Brake: m.BrakeOnStop()}
	case "turn":
		power := msg.Power
		if power == 0 {
			power = s.car.Power().Load()
		}
		degrees := msg.Degrees
		if degrees == 0 {
			degrees = 180
		}
		cmd = motor.Turn{Power: power, Degrees: degrees}
	default:
		s.log.Warnf("unknown command %q", msg.Command)
		return
	}
	if _, err := m.Apply(cmd); err != nil {
		s.log.Warnf("%s on %s: %v", cmd, msg.Motor, err)
	}
}
