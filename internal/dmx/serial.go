package dmx

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/FountainCore/internal/types"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Port is the part of a serial port the sink needs.
type Port interface {
	io.Writer
	io.Closer
}

type SerialOptions struct {
	// PortName skips discovery when set.
	PortName       string
	BaudRate       int
	IOTimeout      time.Duration
	VendorID       string
	ProductIDs     []string
	ReopenInterval time.Duration
}

// PortOpener locates and opens the adapter, returning the port name used.
type PortOpener func(opts SerialOptions) (Port, string, error)

type SerialSink struct {
	opts   SerialOptions
	open   PortOpener
	logger *zap.Logger
	now    func() time.Time

	mu          sync.Mutex
	port        Port
	portName    string
	lastAttempt time.Time
	frames      uint64
}

// OpenSerialSink discovers the adapter and opens it. An ErrDevice error
// means no adapter was usable; callers fall back to a NopSink.
func OpenSerialSink(opts SerialOptions, logger *zap.Logger) (*SerialSink, error) {
	return newSerialSink(opts, openUSBSerial, logger)
}

func newSerialSink(opts SerialOptions, open PortOpener, logger *zap.Logger) (*SerialSink, error) {
	s := &SerialSink{
		opts:   opts,
		open:   open,
		logger: logger,
		now:    time.Now,
	}

	port, name, err := open(opts)
	s.lastAttempt = s.now()
	if err != nil {
		return nil, err
	}

	s.port = port
	s.portName = name

	logger.Info("Serial DMX adapter opened",
		zap.String("port", name),
		zap.Int("baud", opts.BaudRate))

	return s, nil
}

func (s *SerialSink) Name() string {
	return "serial"
}

// Send writes one frame. After a write failure the port is released and
// reopened at most once per ReopenInterval; until then frames are
// discarded.
func (s *SerialSink) Send(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil && !s.reopenLocked() {
		return nil
	}

	if _, err := s.port.Write(EncodeSerialFrame(f)); err != nil {
		s.logger.Error("Serial DMX write failed, releasing port",
			zap.String("port", s.portName),
			zap.Error(err))
		s.port.Close()
		s.port = nil
		return fmt.Errorf("%w: serial write on %s: %v", types.ErrComm, s.portName, err)
	}

	s.frames++
	return nil
}

func (s *SerialSink) reopenLocked() bool {
	now := s.now()
	if now.Sub(s.lastAttempt) < s.opts.ReopenInterval {
		return false
	}
	s.lastAttempt = now

	port, name, err := s.open(s.opts)
	if err != nil {
		s.logger.Debug("Serial DMX adapter still unavailable", zap.Error(err))
		return false
	}

	s.port = port
	s.portName = name
	s.logger.Info("Serial DMX adapter reopened", zap.String("port", name))
	return true
}

// Close writes an all-zero frame and releases the port.
func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		return nil
	}

	if _, err := s.port.Write(EncodeSerialFrame(Frame{})); err != nil {
		s.logger.Warn("Failed to write blackout frame", zap.Error(err))
	}

	err := s.port.Close()
	s.port = nil

	s.logger.Info("Serial DMX adapter closed", zap.String("port", s.portName))
	return err
}

func (s *SerialSink) Status() SinkStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return SinkStatus{
		Name:      s.Name(),
		Connected: s.port != nil,
		Frames:    s.frames,
	}
}

// DiscoverPort returns the first USB serial port whose vendor id matches
// and whose product id is one of productIDs.
func DiscoverPort(vendorID string, productIDs []string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("%w: enumerate serial ports: %v", types.ErrDevice, err)
	}

	for _, p := range ports {
		if !p.IsUSB || !strings.EqualFold(p.VID, vendorID) {
			continue
		}
		for _, pid := range productIDs {
			if strings.EqualFold(p.PID, pid) {
				return p.Name, nil
			}
		}
	}

	return "", fmt.Errorf("%w: no adapter with vid %s pid %v", types.ErrDevice, vendorID, productIDs)
}

func openUSBSerial(opts SerialOptions) (Port, string, error) {
	name := opts.PortName
	if name == "" {
		var err error
		name, err = DiscoverPort(opts.VendorID, opts.ProductIDs)
		if err != nil {
			return nil, "", err
		}
	}

	port, err := serial.Open(name, &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: open %s: %v", types.ErrDevice, name, err)
	}

	if err := port.SetReadTimeout(opts.IOTimeout); err != nil {
		port.Close()
		return nil, "", fmt.Errorf("%w: set timeout on %s: %v", types.ErrDevice, name, err)
	}

	return port, name, nil
}
