package plc

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender drains the client's queue on its own timer.
type Sender struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewSender(client *Client, interval time.Duration, logger *zap.Logger) *Sender {
	return &Sender{
		client:   client,
		interval: interval,
		logger:   logger,
	}
}

func (s *Sender) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)

	go s.sendLoop(s.stopChan)

	s.logger.Info("PLC sender started", zap.Duration("interval", s.interval))

	return nil
}

// Stop halts the loop after a final drain of the queue.
func (s *Sender) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("PLC sender stopped")
}

func (s *Sender) sendLoop(stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Sender) flush() {
	// SendQueue logs its own failures.
	_ = s.client.SendQueue()
}

func (s *Sender) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
