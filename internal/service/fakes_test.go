package service

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var errFakeMissing = errors.New("no such preset")

// fakePresetSource serves modification times from memory.
type fakePresetSource struct {
	mu    sync.Mutex
	times map[string]time.Time
	calls int
}

func newFakePresetSource() *fakePresetSource {
	return &fakePresetSource{times: make(map[string]time.Time)}
}

func (s *fakePresetSource) set(path string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[path] = t
}

func (s *fakePresetSource) remove(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.times, path)
}

func (s *fakePresetSource) ModTime(path string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	t, ok := s.times[path]
	if !ok {
		return time.Time{}, fmt.Errorf("%s: %w", path, errFakeMissing)
	}
	return t, nil
}

// fakeCPU returns a fixed percentage.
type fakeCPU struct {
	mu  sync.Mutex
	pct float64
}

func (c *fakeCPU) Sample() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pct
}

func (c *fakeCPU) set(pct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pct = pct
}
