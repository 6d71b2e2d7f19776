// Package health owns the redis connection behind the cache: it connects with
// bounded retry, tracks the connection state through a go-redis hook, and
// periodically probes the server for diagnostics.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/shelfcache"
)

const (
	defaultMaxConnectAttempts = 10
	defaultProbeInterval      = 60 * time.Second
	defaultProbeTimeout       = 5 * time.Second

	retryStep     = 50 * time.Millisecond
	retryDelayCap = 2 * time.Second
)

var (
	ErrNoAddress = errors.New("health: URL or Options is required")
	// ErrEnded is returned by dials once the monitor gave up on the server.
	ErrEnded = errors.New("health: connection ended")
)

type State int

const (
	StateConnecting State = iota
	StateReady
	StateError
	StateReconnecting
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateReconnecting:
		return "reconnecting"
	case StateEnded:
		return "ended"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

type Config struct {
	// URL is a redis:// or rediss:// connection string. Ignored when Options
	// is set.
	URL     string
	Options *redis.Options

	MaxConnectAttempts   int           // 0 => 10
	MaxReconnectAttempts int           // consecutive failed dials after first ready; 0 => unlimited
	ProbeInterval        time.Duration // 0 => 60s
	ProbeTimeout         time.Duration // 0 => 5s

	Clock  clockwork.Clock   // nil => real clock
	Logger shelfcache.Logger // if nil, NopLogger is used

	// OnStateChange is called after every transition, outside internal locks.
	OnStateChange func(from, to State)
}

// RetryDelay is the wait before connect attempt+1: attempt*50ms, capped at 2s.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := time.Duration(attempt) * retryStep
	if d > retryDelayCap {
		return retryDelayCap
	}
	return d
}

// Monitor is a redis.Hook installed on the client it owns.
type Monitor struct {
	client        *redis.Client
	clock         clockwork.Clock
	log           shelfcache.Logger
	onChange      func(from, to State)
	maxReconnect  int
	probeInterval time.Duration
	probeTimeout  time.Duration

	mu        sync.Mutex
	state     State
	everReady bool
	failures  int

	closeOnce sync.Once
	closeErr  error

	loopMu  sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

var _ redis.Hook = (*Monitor)(nil)

// Connect builds the client and pings it until it answers or
// MaxConnectAttempts is exhausted, in which case the monitor is ended, the
// client closed and the last error returned.
func Connect(ctx context.Context, cfg Config) (*Monitor, error) {
	opts, err := clientOptions(cfg)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		clock:         cfg.Clock,
		log:           cfg.Logger,
		onChange:      cfg.OnStateChange,
		maxReconnect:  cfg.MaxReconnectAttempts,
		probeInterval: cfg.ProbeInterval,
		probeTimeout:  cfg.ProbeTimeout,
		state:         StateConnecting,
	}
	if m.clock == nil {
		m.clock = clockwork.NewRealClock()
	}
	if m.log == nil {
		m.log = shelfcache.NopLogger{}
	}
	if m.probeInterval <= 0 {
		m.probeInterval = defaultProbeInterval
	}
	if m.probeTimeout <= 0 {
		m.probeTimeout = defaultProbeTimeout
	}
	attempts := cfg.MaxConnectAttempts
	if attempts <= 0 {
		attempts = defaultMaxConnectAttempts
	}

	m.client = redis.NewClient(opts)
	m.client.AddHook(m)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = m.client.Ping(ctx).Err(); err == nil {
			m.markReady()
			return m, nil
		}
		m.log.Debug("redis connect attempt failed", shelfcache.Fields{"attempt": attempt, "err": err})
		if attempt == attempts {
			break
		}
		if werr := m.wait(ctx, RetryDelay(attempt)); werr != nil {
			err = werr
			break
		}
	}

	m.end()
	_ = m.closeClient()
	return nil, fmt.Errorf("health: connect to %s after %d attempts: %w", opts.Addr, attempts, err)
}

func (m *Monitor) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m.clock.After(d):
		return nil
	}
}

func clientOptions(cfg Config) (*redis.Options, error) {
	if cfg.Options != nil {
		o := *cfg.Options
		return &o, nil
	}
	if cfg.URL == "" {
		return nil, ErrNoAddress
	}
	o, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("health: parse url: %w", err)
	}
	return o, nil
}

// Client is the shared connection handle. It stays valid until Close.
func (m *Monitor) Client() redis.UniversalClient { return m.client }

func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Close stops the probe loop, ends the monitor and closes the client.
func (m *Monitor) Close() error {
	m.Stop()
	m.end()
	return m.closeClient()
}

func (m *Monitor) closeClient() error {
	m.closeOnce.Do(func() { m.closeErr = m.client.Close() })
	return m.closeErr
}

func (m *Monitor) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !m.beginDial() {
			return nil, ErrEnded
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			m.dialFailed(err)
			return nil, err
		}
		m.markReady()
		return conn, nil
	}
}

func (m *Monitor) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if isConnError(err) {
			m.connLost(err)
		}
		return err
	}
}

func (m *Monitor) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		if isConnError(err) {
			m.connLost(err)
		}
		return err
	}
}

// beginDial reports false once ended.
func (m *Monitor) beginDial() bool {
	m.mu.Lock()
	switch m.state {
	case StateEnded:
		m.mu.Unlock()
		return false
	case StateError:
		from := m.setLocked(StateReconnecting)
		m.mu.Unlock()
		m.changed(from, StateReconnecting, nil)
		return true
	}
	m.mu.Unlock()
	return true
}

func (m *Monitor) dialFailed(err error) {
	m.mu.Lock()
	if !m.everReady || m.state == StateEnded {
		// Connect owns retries until the first ready
		m.mu.Unlock()
		return
	}
	m.failures++
	to := StateError
	if m.maxReconnect > 0 && m.failures >= m.maxReconnect {
		to = StateEnded
	}
	failures := m.failures
	from := m.setLocked(to)
	m.mu.Unlock()

	m.changed(from, to, shelfcache.Fields{"failures": failures, "err": err})
	if to == StateEnded {
		// the pool may still be inside this dial
		go func() { _ = m.closeClient() }()
	}
}

func (m *Monitor) markReady() {
	m.mu.Lock()
	if m.state == StateEnded {
		m.mu.Unlock()
		return
	}
	m.everReady = true
	m.failures = 0
	from := m.setLocked(StateReady)
	m.mu.Unlock()
	m.changed(from, StateReady, nil)
}

func (m *Monitor) connLost(err error) {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	from := m.setLocked(StateError)
	m.mu.Unlock()
	m.changed(from, StateError, shelfcache.Fields{"err": err})
}

func (m *Monitor) end() {
	m.mu.Lock()
	from := m.setLocked(StateEnded)
	m.mu.Unlock()
	m.changed(from, StateEnded, nil)
}

func (m *Monitor) setLocked(to State) State {
	from := m.state
	m.state = to
	return from
}

// changed logs and notifies once per actual transition.
func (m *Monitor) changed(from, to State, f shelfcache.Fields) {
	if from == to {
		return
	}
	if f == nil {
		f = shelfcache.Fields{}
	}
	f["from"] = from.String()
	f["to"] = to.String()
	switch to {
	case StateEnded:
		m.log.Error("redis connection ended", f)
	case StateError:
		m.log.Warn("redis connection error", f)
	default:
		m.log.Info("redis connection state changed", f)
	}
	if m.onChange != nil {
		m.onChange(from, to)
	}
}

func isConnError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && !ne.Timeout()
}

// ProbeResult is one diagnostic sample. UsedMemory and ConnectedClients are
// best-effort and left empty when the server does not report them.
type ProbeResult struct {
	Latency          time.Duration
	Keys             int64
	UsedMemory       string
	ConnectedClients int
}

// Probe measures PING latency and reads DBSIZE and INFO. Only PING and
// DBSIZE failures are returned.
func (m *Monitor) Probe(ctx context.Context) (ProbeResult, error) {
	var res ProbeResult
	start := m.clock.Now()
	if err := m.client.Ping(ctx).Err(); err != nil {
		return res, fmt.Errorf("ping: %w", err)
	}
	res.Latency = m.clock.Since(start)

	n, err := m.client.DBSize(ctx).Result()
	if err != nil {
		return res, fmt.Errorf("dbsize: %w", err)
	}
	res.Keys = n

	if info, err := m.client.InfoMap(ctx, "memory").Result(); err == nil {
		res.UsedMemory = strings.TrimSpace(info["Memory"]["used_memory_human"])
	}
	if info, err := m.client.InfoMap(ctx, "clients").Result(); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(info["Clients"]["connected_clients"])); err == nil {
			res.ConnectedClients = v
		}
	}
	return res, nil
}

// Start launches the probe loop, one probe every ProbeInterval. Failures are
// logged and do not change State. It reports whether a new loop was started.
func (m *Monitor) Start(ctx context.Context) bool {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	if m.running {
		return false
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done = make(chan struct{})
	go m.probeLoop(ctx, m.stopCh, m.done)
	return true
}

func (m *Monitor) Stop() {
	m.loopMu.Lock()
	if !m.running {
		m.loopMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.done
	m.loopMu.Unlock()
	<-done
}

func (m *Monitor) probeLoop(ctx context.Context, stop, done chan struct{}) {
	defer func() {
		m.loopMu.Lock()
		if m.done == done {
			m.running = false
		}
		m.loopMu.Unlock()
		close(done)
	}()

	ticker := m.clock.NewTicker(m.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.probeOnce(ctx)
		}
	}
}

func (m *Monitor) probeOnce(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()
	res, err := m.Probe(pctx)
	if err != nil {
		m.log.Warn("redis probe failed", shelfcache.Fields{"state": m.State().String(), "err": err})
		return
	}
	m.log.Info("redis probe", shelfcache.Fields{
		"latency":     res.Latency.String(),
		"keys":        res.Keys,
		"used_memory": res.UsedMemory,
		"clients":     res.ConnectedClients,
	})
}
