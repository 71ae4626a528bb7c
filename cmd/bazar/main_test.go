package main

import (
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestStopServingWaitsForInflightRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var stopped, lateEvent atomic.Bool

	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		// A handler publishes its event just before it returns.
		if stopped.Load() {
			lateEvent.Store(true)
		}
		w.WriteHeader(http.StatusOK)
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	go server.Serve(ln)

	respDone := make(chan error, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String())
		if err == nil {
			resp.Body.Close()
		}
		respDone <- err
	}()
	<-started

	producers := make(chan struct{})
	close(producers)
	stopDone := make(chan error, 1)
	go func() {
		stopDone <- stopServing(server, producers, func() { stopped.Store(true) }, 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	if stopped.Load() {
		t.Fatal("event stream stopped while a request was in flight")
	}

	close(release)
	if err := <-stopDone; err != nil {
		t.Fatalf("stopServing: %v", err)
	}
	if !stopped.Load() {
		t.Error("expected event stream stopped after shutdown")
	}
	if lateEvent.Load() {
		t.Error("in-flight request published after the event stream stopped")
	}
	if err := <-respDone; err != nil {
		t.Errorf("in-flight request failed: %v", err)
	}
}

func TestStopServingWaitsForProducers(t *testing.T) {
	server := &http.Server{Handler: http.NotFoundHandler()}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	go server.Serve(ln)

	producers := make(chan struct{})
	var stopped atomic.Bool
	stopDone := make(chan error, 1)
	go func() {
		stopDone <- stopServing(server, producers, func() { stopped.Store(true) }, 5*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	if stopped.Load() {
		t.Fatal("event stream stopped before the sweeper finished")
	}

	close(producers)
	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatalf("stopServing: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stopServing did not return")
	}
	if !stopped.Load() {
		t.Error("expected event stream stopped")
	}
}
