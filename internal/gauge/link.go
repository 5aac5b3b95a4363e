package gauge

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/boxboy523/inzi/internal/log"
	"github.com/boxboy523/inzi/internal/types"
	"github.com/boxboy523/inzi/pkg/config"
	serial "github.com/tarm/goserial"
	"go.uber.org/zap"
)

const (
	// reconnectWait is the fixed backoff between connection attempts. The
	// link retries forever; a gauge outage must never stop the daemon.
	reconnectWait = 5 * time.Second

	// responseWait caps how long one poll waits for the gauge's response.
	responseWait = 2 * time.Second

	// SimulatorHost selects the in-process simulated gauge server.
	SimulatorHost = "simulator"
)

// Link owns one connection to the gauge head. Within a connection, pending
// write commands are always drained before the next read poll so the reset
// handshake never races the next cycle's measurement.
type Link struct {
	ctx         context.Context
	wg          *sync.WaitGroup
	config      config.GaugeData
	layout      FrameLayout
	distributor chan<- types.Measurement
	commands    chan Command
	logger      *zap.SugaredLogger

	readCmd   []byte
	assertCmd []byte
	clearCmd  []byte

	netConn net.Conn
	rwc     io.ReadWriteCloser

	connected   bool
	connectedMu sync.RWMutex
}

// NewLink builds a gauge link from configuration. The pre-encoded command
// frames come from config as hex strings.
func NewLink(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, distributor chan<- types.Measurement, logger *zap.SugaredLogger) (*Link, error) {
	gaugeConfig, err := configProvider.GetGauge()
	if err != nil {
		return nil, fmt.Errorf("error loading gauge configuration: %w", err)
	}

	link := &Link{
		ctx:         ctx,
		wg:          wg,
		config:      *gaugeConfig,
		layout:      LayoutFromConfig(gaugeConfig.Layout),
		distributor: distributor,
		commands:    make(chan Command, 16),
		logger:      logger,
	}

	if link.config.SerialDevice == "" && (link.config.Hostname == "" || link.config.Port == "") {
		return nil, fmt.Errorf("gauge must define either a serial device or hostname+port")
	}
	if link.config.Baud == 0 {
		link.config.Baud = 9600
	}

	if link.readCmd, err = hex.DecodeString(link.config.ReadCmdHex); err != nil {
		return nil, fmt.Errorf("bad read command hex: %w", err)
	}
	if link.assertCmd, err = hex.DecodeString(link.config.AssertCmdHex); err != nil {
		return nil, fmt.Errorf("bad reset-assert command hex: %w", err)
	}
	if link.clearCmd, err = hex.DecodeString(link.config.ClearCmdHex); err != nil {
		return nil, fmt.Errorf("bad reset-clear command hex: %w", err)
	}

	return link, nil
}

// Start launches the connection loop. When the configured hostname is the
// simulator sentinel, a local simulated gauge is started first so the daemon
// can run on a bench with no hardware.
func (l *Link) Start() error {
	log.Infof("Starting gauge link [%v]...", l.target())

	if l.config.Hostname == SimulatorHost {
		sim := NewSimulator("127.0.0.1:"+l.config.Port, l.layout)
		if err := sim.Start(l.ctx); err != nil {
			return fmt.Errorf("could not start simulated gauge: %w", err)
		}
		l.config.Hostname = "127.0.0.1"
	}

	l.wg.Add(1)
	go l.run()
	return nil
}

// Connected reports whether the link currently holds a live connection.
func (l *Link) Connected() bool {
	l.connectedMu.RLock()
	defer l.connectedMu.RUnlock()
	return l.connected
}

func (l *Link) setConnected(connected bool) {
	l.connectedMu.Lock()
	l.connected = connected
	l.connectedMu.Unlock()
}

func (l *Link) target() string {
	if l.config.SerialDevice != "" {
		return l.config.SerialDevice
	}
	return net.JoinHostPort(l.config.Hostname, l.config.Port)
}

// run cycles the connection forever: connect, poll until an I/O error, tear
// down, back off, repeat.
func (l *Link) run() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("cancellation request received. Cancelling gauge link")
			return
		default:
		}

		if !l.connect() {
			return
		}
		l.setConnected(true)

		err := l.session()
		l.setConnected(false)
		l.teardown()
		if err == nil {
			// session only returns nil on cancellation
			return
		}

		l.logger.Errorf("gauge connection to %v failed: %v. Reconnecting in %v", l.target(), err, reconnectWait)
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

// connect dials the gauge over TCP or serial, retrying with a fixed backoff
// until it succeeds or the context is cancelled. Returns false on
// cancellation.
func (l *Link) connect() bool {
	for {
		var err error
		if l.config.SerialDevice != "" {
			sc := &serial.Config{Name: l.config.SerialDevice, Baud: l.config.Baud}
			l.rwc, err = serial.OpenPort(sc)
		} else {
			l.netConn, err = net.DialTimeout("tcp", l.target(), 10*time.Second)
			if err == nil {
				l.rwc = io.ReadWriteCloser(l.netConn)
			}
		}

		if err == nil {
			log.Infof("Connected to gauge at %v", l.target())
			return true
		}

		l.logger.Errorf("could not connect to gauge at %v: %v. Retrying in %v", l.target(), err, reconnectWait)
		select {
		case <-l.ctx.Done():
			l.logger.Info("cancellation request received during gauge connect")
			return false
		case <-time.After(reconnectWait):
		}
	}
}

func (l *Link) teardown() {
	if l.rwc != nil {
		l.rwc.Close()
		l.rwc = nil
	}
	l.netConn = nil
}

// session runs one connection's poll loop. The codec and router are created
// fresh so no frame or edge state crosses a reconnect. Any send or receive
// error ends the session; the caller reconnects.
func (l *Link) session() error {
	codec := NewCodec(l.layout)
	router := NewRouter(l.distributor, l.commands, l.config.ResetMode, l.logger)

	pollInterval := time.Duration(l.config.PollMs) * time.Millisecond
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	buf := make([]byte, 4096)
	for {
		select {
		case <-l.ctx.Done():
			l.logger.Info("cancellation request received. Cancelling gauge session")
			return nil
		case <-ticker.C:
			// Pending reset writes go out ahead of the read so the
			// physical handshake never waits behind polling.
			if err := l.drainCommands(); err != nil {
				return fmt.Errorf("command write failed: %w", err)
			}
			if _, err := l.rwc.Write(l.readCmd); err != nil {
				return fmt.Errorf("read poll failed: %w", err)
			}

			if l.netConn != nil {
				l.netConn.SetReadDeadline(time.Now().Add(responseWait))
			}
			n, err := l.rwc.Read(buf)
			if err != nil {
				return fmt.Errorf("response read failed: %w", err)
			}

			for _, frame := range codec.Feed(buf[:n]) {
				router.HandleFrame(frame)
			}
		}
	}
}

func (l *Link) drainCommands() error {
	for {
		select {
		case cmd := <-l.commands:
			if _, err := l.rwc.Write(l.commandBytes(cmd)); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (l *Link) commandBytes(cmd Command) []byte {
	switch cmd {
	case CmdAssert:
		return l.assertCmd
	case CmdClear:
		return l.clearCmd
	default:
		return l.readCmd
	}
}
