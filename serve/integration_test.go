package main

import (
	"context"
	"fmt"
	"sync"
	"testing"

	minder "github.com/hollowlog/minder"
	"github.com/hollowlog/minder/agent"
	"github.com/hollowlog/minder/client"
)

func TestIntegrationRoundTrip(t *testing.T) {
	stub := &stubHandler{
		resp: &minder.Response{
			Success: true,
			Kind:    "todo",
			Command: "localStorage.setItem('todos', JSON.stringify(todos))",
			Operation: &minder.TodoOperation{
				Kind:           minder.OpCreate,
				StorageCommand: "localStorage.setItem('todos', JSON.stringify(todos))",
			},
		},
	}
	srv := newTestServer(t, stub)

	resp := sendCommand(t, srv, &minder.Command{
		Text:          "add buy milk",
		Credentials:   "token",
		ModelID:       "gemini-2.0-flash",
		CorrelationID: "req-7",
	})

	if resp.CorrelationID != "req-7" {
		t.Errorf("correlation id = %q, want req-7", resp.CorrelationID)
	}
	if resp.Operation == nil || resp.Operation.Kind != minder.OpCreate {
		t.Fatalf("operation = %+v, want create", resp.Operation)
	}
	if resp.Command == "" {
		t.Error("storage command missing")
	}
}

// A full loop through the real engine: the envelope is rejected before any
// gateway work, so no credentials or network are needed.
func TestIntegrationEngineValidatesEnvelope(t *testing.T) {
	t.Setenv("MINDER_CONFIG_DIR", t.TempDir())

	n := testSocketCounter.Add(1)
	sockPath := fmt.Sprintf("/tmp/minder-t%d.sock", n)
	srv, err := NewServerWithHandler("unix://"+sockPath, agent.NewEngine())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	go srv.Serve()

	resp := sendCommand(t, srv, &minder.Command{
		Text:          "add buy milk",
		CorrelationID: "req-1",
		// no credentials, no model
	})

	if resp.Success {
		t.Fatal("engine accepted an incomplete envelope")
	}
	if resp.Error == nil || resp.Error.Code != minder.ErrInvalidConfiguration {
		t.Errorf("error = %+v, want %s", resp.Error, minder.ErrInvalidConfiguration)
	}
	if resp.CorrelationID != "req-1" {
		t.Errorf("correlation id = %q, want req-1", resp.CorrelationID)
	}
}

// Both ends of the protocol together: the client manager assigns correlation
// ids and matches the daemon's replies back to the blocked callers.
func TestIntegrationClientManager(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hello"}}
	srv := newTestServer(t, stub)

	mgr := client.New("unix://" + srv.addr)
	t.Cleanup(mgr.Close)
	mgr.SetCredentials("token")

	for i := 0; i < 3; i++ {
		resp, err := mgr.Send(context.Background(), &minder.Command{
			Text:    "give me a quote",
			ModelID: "gemini-2.0-flash",
		})
		if err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		if resp.Answer != "hello" {
			t.Errorf("answer = %q, want hello", resp.Answer)
		}
	}
}

func TestIntegrationMalformedCommand(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hi"}}
	srv := newTestServer(t, stub)

	// Send garbage and drop the connection.
	conn := dialServer(t, srv)
	conn.Write([]byte("not json\n"))
	conn.Close()

	// Server should survive — send a valid command after
	resp := sendCommand(t, srv, &minder.Command{Text: "hello", CorrelationID: "req-99"})
	if resp.CorrelationID != "req-99" {
		t.Errorf("server should survive a malformed command, got correlation id %q", resp.CorrelationID)
	}
}

func TestIntegrationConcurrentConnections(t *testing.T) {
	stub := &stubHandler{resp: &minder.Response{Success: true, Kind: "query", Answer: "hi"}}
	srv := newTestServer(t, stub)

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			want := fmt.Sprintf("req-%d", id)
			resp := sendCommand(t, srv, &minder.Command{
				Text:          "concurrent",
				CorrelationID: want,
			})
			if resp.CorrelationID != want {
				errs <- fmt.Sprintf("goroutine %d: correlation id = %q, want %q", id, resp.CorrelationID, want)
			}
		}(i + 1)
	}

	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}
