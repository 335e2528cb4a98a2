package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	minder "github.com/hollowlog/minder"
	"github.com/hollowlog/minder/agent"
)

// maxMessageBytes bounds a single inbound line. Notes payloads can be large.
const maxMessageBytes = 10 << 20

// Handler processes one command and returns a response.
type Handler interface {
	Handle(ctx context.Context, cmd *minder.Command) *minder.Response
	Close()
}

// Server listens on a stream socket for newline-delimited JSON commands.
// Connections are handled in parallel; within one connection, commands are
// processed strictly one at a time and replies are never reordered.
type Server struct {
	listener net.Listener
	network  string
	addr     string
	engine   Handler

	mu sync.Mutex // guards engine swaps on reload
}

// NewServer creates a server bound to the given listen address.
func NewServer(listenAddr string) (*Server, error) {
	engine := agent.NewEngine()
	return NewServerWithHandler(listenAddr, engine)
}

// NewServerWithHandler creates a server with a custom Handler.
func NewServerWithHandler(listenAddr string, handler Handler) (*Server, error) {
	network, addr, err := parseListenAddr(listenAddr)
	if err != nil {
		return nil, err
	}

	if network == "unix" {
		// Remove stale socket file if it exists
		if err := os.Remove(addr); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	listener, err := net.Listen(network, addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		network:  network,
		addr:     addr,
		engine:   handler,
	}, nil
}

// parseListenAddr splits "unix://<path>" or "tcp://<host>:<port>" into a
// network and address. A bare path listens on a Unix socket; empty falls back
// to the default socket path.
func parseListenAddr(listenAddr string) (network, addr string, err error) {
	switch {
	case listenAddr == "":
		return "unix", minder.DefaultSocketPath(), nil
	case strings.HasPrefix(listenAddr, "unix://"):
		return "unix", strings.TrimPrefix(listenAddr, "unix://"), nil
	case strings.HasPrefix(listenAddr, "tcp://"):
		return "tcp", strings.TrimPrefix(listenAddr, "tcp://"), nil
	case strings.Contains(listenAddr, "://"):
		return "", "", fmt.Errorf("unsupported listen scheme in %q", listenAddr)
	default:
		return "unix", listenAddr, nil
	}
}

// Serve accepts connections and handles them until the listener closes.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// Close shuts down the server, the engine, and removes the socket file.
func (s *Server) Close() {
	s.handler().Close()
	s.listener.Close()
	if s.network == "unix" {
		os.Remove(s.addr)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	slog.Debug("client connected", "remote", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)

	// One message at a time: a command received while the previous one is
	// still processing waits here, so replies keep arrival order.
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		s.handleMessage(conn, raw)
	}

	slog.Debug("client disconnected", "remote", conn.RemoteAddr())
}

func (s *Server) handleMessage(conn net.Conn, raw []byte) {
	// Control request (has an "action" field)
	var ctl minder.ControlRequest
	if err := json.Unmarshal(raw, &ctl); err == nil && ctl.Action != "" {
		s.handleControlRequest(conn, &ctl)
		return
	}

	var cmd minder.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		slog.Warn("invalid command envelope", "error", err)
		// Valid JSON with a wrong-typed field is a configuration problem,
		// not a framing problem.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			writeMessage(conn, &minder.Response{
				Error: &minder.Error{
					Code:    minder.ErrInvalidConfiguration,
					Message: fmt.Sprintf("field %q has wrong type: %v", typeErr.Field, err),
				},
			})
			return
		}
		writeMessage(conn, &minder.Response{
			Error: &minder.Error{
				Code:    minder.ErrInvalidJSON,
				Message: "invalid JSON; expected {text, credentials, modelId, generationConfig, ...}",
			},
		})
		return
	}

	slog.Debug("command received",
		"text", cmd.Text,
		"model", cmd.ModelID,
		"hint", cmd.OperationHint,
		"correlation_id", cmd.CorrelationID,
	)

	resp := s.handler().Handle(context.Background(), &cmd)
	writeMessage(conn, resp)

	if resp.Error != nil {
		slog.Info("command failed", "code", resp.Error.Code, "correlation_id", cmd.CorrelationID)
	} else {
		slog.Info("command handled", "kind", resp.Kind, "correlation_id", cmd.CorrelationID)
	}
}

func (s *Server) handleControlRequest(conn net.Conn, req *minder.ControlRequest) {
	var resp minder.ControlResponse

	switch req.Action {
	case "get":
		cfg, err := minder.LoadConfig()
		if err != nil {
			resp.Error = &minder.Error{Code: minder.ErrInvalidConfiguration, Message: err.Error()}
		} else {
			resp.Config = cfg
		}

	case "reload":
		// Respond immediately; rebuild the engine in the background so the
		// client is not held up by gateway construction.
		go s.reloadEngine()
		cfg, _ := minder.LoadConfig()
		resp.Config = cfg

	case "defaults":
		resp.Config = minder.DefaultConfig()

	default:
		resp.Error = &minder.Error{
			Code:    minder.ErrInvalidConfiguration,
			Message: "unknown control action: " + req.Action,
		}
	}

	writeMessage(conn, &resp)
}

func (s *Server) reloadEngine() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine != nil {
		s.engine.Close()
	}
	s.engine = agent.NewEngine()
	slog.Info("engine reloaded")
}

func (s *Server) handler() Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func writeMessage(conn net.Conn, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}

	slog.Debug("response", "data", string(data))

	conn.Write(append(data, '\n'))
}
