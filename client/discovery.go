package client

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/loadbalance"
	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// Provider registers this process's methods with the registry server.
type Provider struct {
	requestor *Requestor
}

func NewProvider(requestor *Requestor) *Provider {
	return &Provider{requestor: requestor}
}

// RegistryMethod announces that host serves method.
func (p *Provider) RegistryMethod(conn transport.Conn, method string, host message.Address) error {
	req := &message.ServiceRequest{
		Method: method,
		Optype: message.ServiceRegistry,
		Host:   &host,
	}
	req.SetRID(uuid.NewString())

	msg, err := p.requestor.SendSync(conn, req)
	if err != nil {
		return errors.Wrapf(err, "register method %s", method)
	}
	rsp, ok := msg.(*message.ServiceResponse)
	if !ok {
		return errors.Errorf("register method %s: unexpected response type %T", method, msg)
	}
	if rsp.RCode != message.RCodeOK {
		return errors.Errorf("register method %s failed: %s", method, message.ErrReason(rsp.RCode))
	}
	return nil
}

// MethodHost is the mutable endpoint set for one method, reconciled by
// ONLINE/OFFLINE notifications and consulted on every call.
type MethodHost struct {
	mu       sync.Mutex
	method   string
	hosts    []message.Address
	balancer loadbalance.Balancer
}

func newMethodHost(method string, hosts []message.Address, factory loadbalance.Factory) *MethodHost {
	return &MethodHost{
		method:   method,
		hosts:    append([]message.Address(nil), hosts...),
		balancer: factory(),
	}
}

func (m *MethodHost) Append(host message.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.hosts {
		if h.Equal(host) {
			return
		}
	}
	m.hosts = append(m.hosts, host)
}

func (m *MethodHost) Remove(host message.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, h := range m.hosts {
		if h.Equal(host) {
			m.hosts = append(m.hosts[:i], m.hosts[i+1:]...)
			return
		}
	}
}

func (m *MethodHost) Choose() (message.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balancer.Pick(m.method, m.hosts)
}

func (m *MethodHost) Empty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hosts) == 0
}

// OfflineCallback fires when a provider goes offline, with the departed
// host. The composed RpcClient uses it to evict its cached connection.
type OfflineCallback func(host message.Address)

// Discoverer resolves method names to provider endpoints through the
// registry server and keeps the per-method cache fresh.
type Discoverer struct {
	mu          sync.Mutex
	methodHosts map[string]*MethodHost
	requestor   *Requestor
	offline     OfflineCallback
	balancers   loadbalance.Factory
}

func NewDiscoverer(requestor *Requestor, offline OfflineCallback, balancers loadbalance.Factory) *Discoverer {
	if balancers == nil {
		balancers = loadbalance.NewRoundRobin
	}
	return &Discoverer{
		methodHosts: make(map[string]*MethodHost),
		requestor:   requestor,
		offline:     offline,
		balancers:   balancers,
	}
}

// ServiceDiscovery returns an endpoint for method, serving from the
// cache when it has hosts and otherwise issuing a DISCOVERY round-trip.
func (d *Discoverer) ServiceDiscovery(conn transport.Conn, method string) (message.Address, error) {
	d.mu.Lock()
	if mh, ok := d.methodHosts[method]; ok && !mh.Empty() {
		d.mu.Unlock()
		return mh.Choose()
	}
	d.mu.Unlock()

	req := &message.ServiceRequest{Method: method, Optype: message.ServiceDiscovery}
	req.SetRID(uuid.NewString())
	msg, err := d.requestor.SendSync(conn, req)
	if err != nil {
		return message.Address{}, errors.Wrapf(err, "discover %s", method)
	}
	rsp, ok := msg.(*message.ServiceResponse)
	if !ok {
		return message.Address{}, errors.Errorf("discover %s: unexpected response type %T", method, msg)
	}
	if rsp.RCode != message.RCodeOK {
		return message.Address{}, errors.Errorf("discover %s failed: %s", method, message.ErrReason(rsp.RCode))
	}

	mh := newMethodHost(method, rsp.Hosts, d.balancers)
	if mh.Empty() {
		return message.Address{}, errors.Errorf("discover %s: no providers online", method)
	}
	d.mu.Lock()
	d.methodHosts[method] = mh
	d.mu.Unlock()
	return mh.Choose()
}

// OnServiceRequest handles ONLINE/OFFLINE pushes from the registry
// server, reconciling the cache. Other optypes are ignored.
func (d *Discoverer) OnServiceRequest(conn transport.Conn, msg *message.ServiceRequest) {
	switch msg.Optype {
	case message.ServiceOnline:
		d.mu.Lock()
		mh, ok := d.methodHosts[msg.Method]
		if !ok {
			mh = newMethodHost(msg.Method, nil, d.balancers)
			d.methodHosts[msg.Method] = mh
		}
		d.mu.Unlock()
		mh.Append(*msg.Host)
		suplog.S().Infof("method %s: provider %s online", msg.Method, msg.Host)
	case message.ServiceOffline:
		d.mu.Lock()
		mh, ok := d.methodHosts[msg.Method]
		d.mu.Unlock()
		if !ok {
			return
		}
		mh.Remove(*msg.Host)
		suplog.S().Infof("method %s: provider %s offline", msg.Method, msg.Host)
		if d.offline != nil {
			d.offline(*msg.Host)
		}
	}
}
