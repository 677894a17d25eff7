package syncpipe

import (
	"testing"
	"time"
)

type payload struct {
	ID   string   `json:"id"`
	Args []string `json:"args"`
}

func TestSendAndReceive(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	sent := payload{ID: "abc", Args: []string{"/bin/sh", "-c", "true"}}
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.SendToChild(&sent)
	}()

	var got payload
	if err := p.ReadFromParent(&got); err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if got.ID != sent.ID || len(got.Args) != 3 {
		t.Fatalf("received %+v", got)
	}
}

func TestChildErrorRoundTrip(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	go p.ReportError(KindSecurity, &InitError{Message: "drop capabilities: operation not permitted"})

	err = p.AwaitChild()
	if err == nil {
		t.Fatal("expected a reported error")
	}
	ie, ok := err.(*InitError)
	if !ok {
		t.Fatalf("got %T: %v", err, err)
	}
	if ie.Kind != KindSecurity {
		t.Fatalf("kind %q, want %q", ie.Kind, KindSecurity)
	}
}

func TestChildCloseMeansSuccess(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	go p.CloseChild()

	done := make(chan error, 1)
	go func() { done <- p.AwaitChild() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("EOF without payload reported %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AwaitChild did not return on EOF")
	}
}

func TestNewChildPipeRejectsStdin(t *testing.T) {
	if _, err := NewChildPipe(0); err == nil {
		t.Fatal("fd 0 accepted as sync pipe")
	}
}
