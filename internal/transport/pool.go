// Package transport holds the fixed set of HTTP handles shared by all workers.
package transport

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// AssignFunc maps an id onto one of size handles. It must be pure.
type AssignFunc func(id uint64, size int) int

// Modulo assigns id to handle id mod size.
func Modulo(id uint64, size int) int {
	return int(id % uint64(size))
}

// Options configures a Pool.
type Options struct {
	// Size is the number of independent handles.
	Size int
	// Timeout bounds each request, including reading the body.
	Timeout time.Duration
	// IdleConnsPerHandle is how many keep-alive connections each handle
	// retains between requests. Defaults to 2. Live connections are not
	// capped: a request never waits for another fid's connection, so
	// Timeout measures only its own exchange with the hub.
	IdleConnsPerHandle int
	// Assign defaults to Modulo.
	Assign AssignFunc
}

// Pool is a fixed set of reusable HTTP clients. Each fid always maps to the
// same client, so its retries reuse that client's keep-alive connection.
type Pool struct {
	handles []*http.Client
	assign  AssignFunc
}

// NewPool creates Size clients, each with its own transport.
func NewPool(opts Options) (*Pool, error) {
	if opts.Size < 1 {
		return nil, errors.New("transport pool size must be at least 1")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("transport timeout must be positive")
	}
	idle := opts.IdleConnsPerHandle
	if idle < 1 {
		idle = http.DefaultMaxIdleConnsPerHost
	}

	handles := make([]*http.Client, opts.Size)
	for i := range handles {
		handles[i] = &http.Client{
			Timeout:   opts.Timeout,
			Transport: newTransport(opts.Timeout, idle),
		}
	}
	return NewPoolFromClients(handles, opts.Assign)
}

// NewPoolFromClients wraps existing clients. assign may be nil.
func NewPoolFromClients(clients []*http.Client, assign AssignFunc) (*Pool, error) {
	if len(clients) == 0 {
		return nil, errors.New("transport pool needs at least one client")
	}
	if assign == nil {
		assign = Modulo
	}
	return &Pool{handles: clients, assign: assign}, nil
}

func newTransport(timeout time.Duration, idle int) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   timeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idle,
		MaxIdleConnsPerHost:   idle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ExpectContinueTimeout: time.Second,
	}
}

// HandleFor returns the client assigned to id.
func (p *Pool) HandleFor(id uint64) *http.Client {
	i := p.assign(id, len(p.handles))
	if i < 0 || i >= len(p.handles) {
		i = Modulo(uint64(i), len(p.handles))
	}
	return p.handles[i]
}

// Size is the number of handles.
func (p *Pool) Size() int {
	return len(p.handles)
}

// Close drops idle connections on every handle.
func (p *Pool) Close() {
	for _, h := range p.handles {
		h.CloseIdleConnections()
	}
}
