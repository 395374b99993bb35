package service

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeService struct {
	stop    chan struct{}
	stopped bool
}

func newFakeService() *fakeService {
	return &fakeService{stop: make(chan struct{})}
}

func (s *fakeService) Serve() error {
	<-s.stop
	return nil
}

func (s *fakeService) Stop() {
	s.stopped = true
	close(s.stop)
}

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type emptyConfig struct{}

func (emptyConfig) Get(string) Config            { return nil }
func (emptyConfig) Unmarshal(out interface{}) error { return nil }

func TestContainerServesAndStopsRegisteredService(t *testing.T) {
	c := NewContainer(discardLogger())

	svc := newFakeService()
	c.Register("fake", svc)

	if err := c.Init(emptyConfig{}); err != nil {
		t.Fatal(err)
	}

	if _, status := c.Get("fake"); status != StatusOK {
		t.Fatalf("status after Init = %d, want StatusOK", status)
	}

	done := make(chan error, 1)
	go func() { done <- c.Serve() }()

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Serve to return after Stop")
	}

	if !svc.stopped {
		t.Fatal("expected Stop to have been called on the service")
	}
}

func TestContainerInitRejectsDoubleConfiguration(t *testing.T) {
	c := NewContainer(discardLogger())
	c.Register("fake", newFakeService())

	if err := c.Init(emptyConfig{}); err != nil {
		t.Fatal(err)
	}

	if err := c.Init(emptyConfig{}); err == nil {
		t.Fatal("expected an error re-initializing an already-configured service")
	}
}

func TestHasAndList(t *testing.T) {
	c := NewContainer(discardLogger())
	c.Register("a", newFakeService())
	c.Register("b", newFakeService())

	if !c.Has("a") || !c.Has("b") {
		t.Fatal("expected both services to be registered")
	}
	if c.Has("c") {
		t.Fatal("did not expect an unregistered service to be present")
	}

	names := c.List()
	if len(names) != 2 {
		t.Fatalf("List() = %v", names)
	}
}
