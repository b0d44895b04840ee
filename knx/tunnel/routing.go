package tunnel

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/calimero/internal/obslog"
	"github.com/nerrad567/calimero/knx"
	"github.com/nerrad567/calimero/knx/cemi"
)

// defaultMulticastAddress is the KNX backbone's standard routing group,
// matching internal/config's GatewayConfig.MulticastAddress default.
const defaultMulticastAddress = "224.0.23.12"

const routingPort = 3671

// maxRoutingBackoff caps the busy-wait back-off a RoutingSession applies
// after repeated ROUTING_BUSY indications, so a misbehaving backbone can't
// stall a sender indefinitely.
const maxRoutingBackoff = 5 * time.Second

// RoutingConfig configures a connectionless multicast routing session
// (§4.5 "Routing variant is connectionless multicast").
type RoutingConfig struct {
	// MulticastAddress is the backbone group address. Default: "224.0.23.12".
	MulticastAddress string

	// Interface restricts the multicast group join to one network
	// interface; nil leaves the choice of interface to the system, as
	// net.ListenMulticastUDP does.
	Interface *net.Interface
}

func (c *RoutingConfig) applyDefaults() {
	if c.MulticastAddress == "" {
		c.MulticastAddress = defaultMulticastAddress
	}
}

// RoutingSession is the connectionless counterpart to Session: every
// participant on the backbone multicast group receives every
// ROUTING_INDICATION, so there is no connect handshake, no per-channel
// sequence counter, and no acknowledgement. The only flow control is the
// busy-wait back-off a sender applies after a ROUTING_BUSY (§4.5).
type RoutingSession struct {
	conn *net.UDPConn
	dst  *net.UDPAddr

	onIndication func(cemi.Frame)
	callbackMu   sync.RWMutex
	dispatch     chan cemi.Frame

	busyUntil atomic.Int64 // unix nanoseconds; Send blocks until this passes
	backoff   atomic.Int64 // current back-off duration in nanoseconds

	done chan struct{}
	wg   sync.WaitGroup

	logger obslog.Logger

	telegramsTx  atomic.Uint64
	telegramsRx  atomic.Uint64
	errorsTotal  atomic.Uint64
	lastActivity atomic.Int64
}

// JoinRouting opens a multicast UDP socket on cfg.MulticastAddress:3671 and
// starts the session's receive loop and dispatch workers, the same
// bounded-worker-pool idiom Connect uses for the tunnel variant.
func JoinRouting(cfg RoutingConfig, logger obslog.Logger) (*RoutingSession, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = obslog.Noop()
	}

	group := net.ParseIP(cfg.MulticastAddress)
	if group == nil {
		return nil, fmt.Errorf("%w: invalid multicast address %q", knx.ErrIllegalArgument, cfg.MulticastAddress)
	}
	addr := &net.UDPAddr{IP: group, Port: routingPort}

	conn, err := net.ListenMulticastUDP("udp4", cfg.Interface, addr)
	if err != nil {
		return nil, fmt.Errorf("%w: joining multicast group %s: %v", knx.ErrLinkClosed, cfg.MulticastAddress, err)
	}

	r := &RoutingSession{
		conn:     conn,
		dst:      addr,
		done:     make(chan struct{}),
		dispatch: make(chan cemi.Frame, dispatchQueueSize),
		logger:   logger,
	}
	r.lastActivity.Store(time.Now().Unix())

	for range dispatchWorkers {
		r.wg.Add(1)
		go r.dispatchWorker()
	}
	r.wg.Add(1)
	go r.receiveLoop()

	return r, nil
}

// OnIndication registers the callback invoked for every inbound
// ROUTING_INDICATION's cEMI frame, dispatched through the session's own
// bounded worker pool, sized like Session's.
func (r *RoutingSession) OnIndication(cb func(cemi.Frame)) {
	r.callbackMu.Lock()
	r.onIndication = cb
	r.callbackMu.Unlock()
}

// Send broadcasts frame as a ROUTING_INDICATION, first waiting out any
// back-off a prior ROUTING_BUSY imposed. Unlike Session.Send there is no
// per-frame acknowledgement to wait for: routing is fire-and-forget.
func (r *RoutingSession) Send(ctx context.Context, frame cemi.Frame) error {
	if r.isClosed() {
		return fmt.Errorf("%w: routing session closed", knx.ErrLinkClosed)
	}
	if err := r.waitForBusy(ctx); err != nil {
		return err
	}

	payload, err := frame.Emit()
	if err != nil {
		return err
	}
	out := append(packHeader(ServiceRoutingInd, len(payload)), payload...)
	if _, err := r.conn.WriteToUDP(out, r.dst); err != nil {
		return fmt.Errorf("%w: writing ROUTING_INDICATION: %v", knx.ErrLinkClosed, err)
	}
	r.telegramsTx.Add(1)
	r.lastActivity.Store(time.Now().Unix())
	return nil
}

// waitForBusy blocks until any outstanding ROUTING_BUSY back-off has
// elapsed, or ctx is done, or the session closes.
func (r *RoutingSession) waitForBusy(ctx context.Context) error {
	for {
		until := r.busyUntil.Load()
		if until == 0 {
			return nil
		}
		wait := time.Until(time.Unix(0, until))
		if wait <= 0 {
			r.busyUntil.Store(0)
			r.backoff.Store(0)
			return nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", knx.ErrTimeout, ctx.Err())
		case <-r.done:
			return fmt.Errorf("%w: routing session closed", knx.ErrLinkClosed)
		}
	}
}

func (r *RoutingSession) receiveLoop() {
	defer r.wg.Done()
	buf := make([]byte, 512)

	for {
		select {
		case <-r.done:
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.isClosed() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			r.logger.Error("routing read failed", "error", err)
			r.errorsTotal.Add(1)
			continue
		}

		r.handleDatagram(buf[:n])
	}
}

func (r *RoutingSession) handleDatagram(data []byte) {
	svc, body, err := parseHeader(data)
	if err != nil {
		r.logger.Error("malformed knxnet/ip frame", "error", err)
		r.errorsTotal.Add(1)
		return
	}

	switch svc {
	case ServiceRoutingInd:
		frame, err := cemi.Parse(body)
		if err != nil {
			r.logger.Error("parsing cEMI frame from ROUTING_INDICATION failed", "error", err)
			r.errorsTotal.Add(1)
			return
		}
		r.telegramsRx.Add(1)
		r.lastActivity.Store(time.Now().Unix())
		r.queueIndication(frame)
	case ServiceRoutingBusy:
		r.handleRoutingBusy(body)
	default:
	}
}

// handleRoutingBusy applies the wait time a ROUTING_BUSY carries, doubling
// it (capped at maxRoutingBackoff) if another busy arrives before the
// previous back-off drained, plus a quarter-wait jitter so every sender on
// the backbone doesn't resume in lockstep.
func (r *RoutingSession) handleRoutingBusy(body []byte) {
	if len(body) < 4 {
		r.errorsTotal.Add(1)
		return
	}
	wait := time.Duration(binary.BigEndian.Uint16(body[2:4])) * time.Millisecond

	if prev := time.Duration(r.backoff.Load()); prev > 0 {
		wait = prev * 2
		if wait > maxRoutingBackoff {
			wait = maxRoutingBackoff
		}
	}
	wait += time.Duration(rand.Int63n(int64(wait/4 + 1)))

	r.backoff.Store(int64(wait))
	r.busyUntil.Store(time.Now().Add(wait).UnixNano())
	r.logger.Warn("routing busy received, backing off", "wait", wait)
}

func (r *RoutingSession) queueIndication(frame cemi.Frame) {
	r.callbackMu.RLock()
	has := r.onIndication != nil
	r.callbackMu.RUnlock()
	if !has {
		return
	}
	select {
	case r.dispatch <- frame:
	default:
		r.logger.Warn("indication dispatch queue full, dropping frame")
		r.errorsTotal.Add(1)
	}
}

func (r *RoutingSession) dispatchWorker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.done:
			return
		case frame := <-r.dispatch:
			r.callbackMu.RLock()
			cb := r.onIndication
			r.callbackMu.RUnlock()
			if cb == nil {
				continue
			}
			func() {
				defer func() {
					if rec := recover(); rec != nil {
						r.logger.Error("indication callback panic", "recovered", rec)
					}
				}()
				cb(frame)
			}()
		}
	}
}

func (r *RoutingSession) isClosed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Close stops the receive loop and dispatch workers and leaves the
// multicast group. Idempotent.
func (r *RoutingSession) Close() error {
	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}
	r.conn.Close()
	r.wg.Wait()
	return nil
}

// Stats mirrors Session.Stats for a routing connection; State is always
// reported as Connected until Close, since there is no connection
// handshake to track.
func (r *RoutingSession) Stats() Stats {
	state := Connected
	if r.isClosed() {
		state = Closed
	}
	return Stats{
		TelegramsTx:  r.telegramsTx.Load(),
		TelegramsRx:  r.telegramsRx.Load(),
		ErrorsTotal:  r.errorsTotal.Load(),
		LastActivity: time.Unix(r.lastActivity.Load(), 0),
		State:        state,
	}
}
