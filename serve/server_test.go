package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	minder "github.com/hollowlog/minder"
)

// stubHandler returns a fixed response for testing.
type stubHandler struct {
	resp *minder.Response
}

func (s *stubHandler) Handle(_ context.Context, cmd *minder.Command) *minder.Response {
	// Return a copy so the correlation id can be set per command.
	resp := *s.resp
	resp.CorrelationID = cmd.CorrelationID
	return &resp
}

func (s *stubHandler) Close() {}

var testSocketCounter atomic.Int64

func newTestServer(t *testing.T, handler Handler) *Server {
	t.Helper()
	// Use /tmp directly to avoid macOS 104-char Unix socket path limit
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/minder-t%d.sock", n)
	srv, err := NewServerWithHandler("unix://"+sockPath, handler)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	go srv.Serve()
	return srv
}

func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial(srv.network, srv.addr)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendCommand(t *testing.T, srv *Server, cmd *minder.Command) *minder.Response {
	t.Helper()
	conn := dialServer(t, srv)

	data, err := json.Marshal(cmd)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write(append(data, '\n'))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}

	var resp minder.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return &resp
}

func sendControl(t *testing.T, srv *Server, req *minder.ControlRequest) *minder.ControlResponse {
	t.Helper()
	conn := dialServer(t, srv)

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	conn.Write(append(data, '\n'))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response from server")
	}

	var resp minder.ControlResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return &resp
}

func TestHandleConnEchoesCorrelationID(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hi"}}
	srv := newTestServer(t, stub)

	resp := sendCommand(t, srv, &minder.Command{
		Text:          "give me a quote",
		CorrelationID: "req-17",
	})
	if resp.CorrelationID != "req-17" {
		t.Errorf("correlation id = %q, want req-17", resp.CorrelationID)
	}
}

func TestHandleConnInvalidJSON(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	srv := newTestServer(t, stub)

	conn := dialServer(t, srv)
	conn.Write([]byte("{not valid json\n"))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response")
	}

	var resp minder.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("invalid JSON was accepted")
	}
	if resp.Error == nil || resp.Error.Code != minder.ErrInvalidJSON {
		t.Errorf("error = %+v, want %s", resp.Error, minder.ErrInvalidJSON)
	}
}

// Syntactically valid JSON with a wrong-typed field is a configuration
// error, not a framing error.
func TestHandleConnWrongTypedField(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	srv := newTestServer(t, stub)

	conn := dialServer(t, srv)
	conn.Write([]byte(`{"text":"buy milk","generationConfig":"x"}` + "\n"))

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatal("no response")
	}

	var resp minder.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success {
		t.Error("wrong-typed field was accepted")
	}
	if resp.Error == nil || resp.Error.Code != minder.ErrInvalidConfiguration {
		t.Errorf("error = %+v, want %s", resp.Error, minder.ErrInvalidConfiguration)
	}
	if resp.Error != nil && !strings.Contains(resp.Error.Message, "generationConfig") {
		t.Errorf("error message %q does not name the field", resp.Error.Message)
	}
}

// The connection survives a malformed line: the next well-formed command is
// still handled.
func TestHandleConnRecoversAfterInvalidJSON(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hi"}}
	srv := newTestServer(t, stub)

	conn := dialServer(t, srv)
	scanner := bufio.NewScanner(conn)

	conn.Write([]byte("garbage\n"))
	if !scanner.Scan() {
		t.Fatal("no error reply")
	}

	data, _ := json.Marshal(&minder.Command{Text: "hello", CorrelationID: "req-2"})
	conn.Write(append(data, '\n'))
	if !scanner.Scan() {
		t.Fatal("no reply after recovery")
	}

	var resp minder.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.CorrelationID != "req-2" {
		t.Errorf("reply after recovery = %+v", resp)
	}
}

// Replies on one connection come back in arrival order.
func TestHandleConnSequentialReplies(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hi"}}
	srv := newTestServer(t, stub)

	conn := dialServer(t, srv)
	for i := 1; i <= 3; i++ {
		data, _ := json.Marshal(&minder.Command{
			Text:          "hello",
			CorrelationID: fmt.Sprintf("req-%d", i),
		})
		conn.Write(append(data, '\n'))
	}

	scanner := bufio.NewScanner(conn)
	for i := 1; i <= 3; i++ {
		if !scanner.Scan() {
			t.Fatalf("missing reply %d", i)
		}
		var resp minder.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("req-%d", i)
		if resp.CorrelationID != want {
			t.Errorf("reply %d correlation id = %q, want %q", i, resp.CorrelationID, want)
		}
	}
}

func TestControlDefaultsAction(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	srv := newTestServer(t, stub)

	resp := sendControl(t, srv, &minder.ControlRequest{Action: "defaults"})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", resp.Error.Message)
	}
	if resp.Config == nil {
		t.Fatal("expected non-nil config")
	}
	if resp.Config.Gateway.APIType == "" {
		t.Error("expected a default gateway api_type")
	}
	if resp.Config.Server.CommandTimeoutSeconds == 0 {
		t.Error("expected a default command timeout")
	}
}

func TestControlUnknownAction(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	srv := newTestServer(t, stub)

	resp := sendControl(t, srv, &minder.ControlRequest{Action: "explode"})
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown action")
	}
	if !strings.Contains(resp.Error.Message, "explode") {
		t.Errorf("error message %q does not name the action", resp.Error.Message)
	}
}

func TestParseListenAddr(t *testing.T) {
	tests := []struct {
		in      string
		network string
		addr    string
		wantErr bool
	}{
		{"unix:///tmp/x.sock", "unix", "/tmp/x.sock", false},
		{"tcp://127.0.0.1:8080", "tcp", "127.0.0.1:8080", false},
		{"/tmp/bare.sock", "unix", "/tmp/bare.sock", false},
		{"http://localhost", "", "", true},
	}

	for _, tt := range tests {
		network, addr, err := parseListenAddr(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseListenAddr(%q) err = %v", tt.in, err)
			continue
		}
		if network != tt.network || addr != tt.addr {
			t.Errorf("parseListenAddr(%q) = %s, %s; want %s, %s", tt.in, network, addr, tt.network, tt.addr)
		}
	}
}

// Close must observe the engine through the same lock a reload uses to
// swap it. Run with -race.
func TestCloseDuringEngineSwap(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/minder-t%d.sock", n)

	srv, err := NewServerWithHandler("unix://"+sockPath, stub)
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve()

	done := make(chan struct{})
	go func() {
		srv.mu.Lock()
		srv.engine = &stubHandler{resp: &minder.Response{Success: true}}
		srv.mu.Unlock()
		close(done)
	}()
	srv.Close()
	<-done
}

func TestCloseStopsAccepting(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true}}
	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/minder-t%d.sock", n)

	srv, err := NewServerWithHandler("unix://"+sockPath, stub)
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve()
	srv.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := net.Dial("unix", sockPath); err != nil {
			return // socket gone
		}
	}
	t.Error("socket still accepting connections after Close")
}
