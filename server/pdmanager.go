package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// ProviderRecord tracks one registered provider: the connection it
// registered over, the host it advertised, and the methods it hosts.
// One record exists per connection; it accumulates methods and dies with
// the connection.
type ProviderRecord struct {
	mu      sync.Mutex
	conn    transport.Conn
	host    message.Address
	methods []string
}

func (p *ProviderRecord) appendMethod(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.methods {
		if m == method {
			return
		}
	}
	p.methods = append(p.methods, method)
}

func (p *ProviderRecord) methodList() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.methods...)
}

// ProviderManager indexes providers two ways: by method (for discovery)
// and by connection (for teardown on close). The per-method list keeps
// registration order — discovery responses hand it to the client's
// round-robin as-is.
type ProviderManager struct {
	mu        sync.Mutex
	providers map[string][]*ProviderRecord
	conns     map[transport.Conn]*ProviderRecord
}

func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		providers: make(map[string][]*ProviderRecord),
		conns:     make(map[transport.Conn]*ProviderRecord),
	}
}

func (m *ProviderManager) AddProvider(conn transport.Conn, host message.Address, method string) {
	var provider *ProviderRecord
	m.mu.Lock()
	if p, ok := m.conns[conn]; ok {
		provider = p
	} else {
		provider = &ProviderRecord{conn: conn, host: host}
		m.conns[conn] = provider
	}
	found := false
	for _, p := range m.providers[method] {
		if p == provider {
			found = true
			break
		}
	}
	if !found {
		m.providers[method] = append(m.providers[method], provider)
	}
	m.mu.Unlock()

	provider.appendMethod(method)
}

func (m *ProviderManager) GetProvider(conn transport.Conn) *ProviderRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conns[conn]
}

func (m *ProviderManager) DelProvider(conn transport.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	provider, ok := m.conns[conn]
	if !ok {
		return
	}
	for _, method := range provider.methodList() {
		list := m.providers[method]
		for i, p := range list {
			if p == provider {
				m.providers[method] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(m.providers[method]) == 0 {
			delete(m.providers, method)
		}
	}
	delete(m.conns, conn)
}

// MethodHosts returns the advertised host of every current provider of
// method, in registration order.
func (m *ProviderManager) MethodHosts(method string) []message.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	list, ok := m.providers[method]
	if !ok {
		return nil
	}
	hosts := make([]message.Address, 0, len(list))
	for _, provider := range list {
		hosts = append(hosts, provider.host)
	}
	return hosts
}

// DiscovererRecord tracks one discovering connection and the methods it
// subscribed to.
type DiscovererRecord struct {
	mu      sync.Mutex
	conn    transport.Conn
	methods []string
}

func (d *DiscovererRecord) appendMethod(method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.methods {
		if m == method {
			return
		}
	}
	d.methods = append(d.methods, method)
}

func (d *DiscovererRecord) methodList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.methods...)
}

// DiscovererManager indexes discoverers by method (for notification
// fan-out) and by connection (for teardown).
type DiscovererManager struct {
	mu          sync.Mutex
	discoverers map[string][]*DiscovererRecord
	conns       map[transport.Conn]*DiscovererRecord
}

func NewDiscovererManager() *DiscovererManager {
	return &DiscovererManager{
		discoverers: make(map[string][]*DiscovererRecord),
		conns:       make(map[transport.Conn]*DiscovererRecord),
	}
}

func (m *DiscovererManager) AddDiscoverer(conn transport.Conn, method string) *DiscovererRecord {
	var discoverer *DiscovererRecord
	m.mu.Lock()
	if d, ok := m.conns[conn]; ok {
		discoverer = d
	} else {
		discoverer = &DiscovererRecord{conn: conn}
		m.conns[conn] = discoverer
	}
	found := false
	for _, d := range m.discoverers[method] {
		if d == discoverer {
			found = true
			break
		}
	}
	if !found {
		m.discoverers[method] = append(m.discoverers[method], discoverer)
	}
	m.mu.Unlock()

	discoverer.appendMethod(method)
	return discoverer
}

func (m *DiscovererManager) DelDiscoverer(conn transport.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	discoverer, ok := m.conns[conn]
	if !ok {
		return
	}
	for _, method := range discoverer.methodList() {
		list := m.discoverers[method]
		for i, d := range list {
			if d == discoverer {
				m.discoverers[method] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(m.discoverers[method]) == 0 {
			delete(m.discoverers, method)
		}
	}
	delete(m.conns, conn)
}

// OnlineNotify pushes ONLINE(method, host) to every discoverer of
// method.
func (m *DiscovererManager) OnlineNotify(method string, host message.Address) {
	m.notify(method, host, message.ServiceOnline)
}

// OfflineNotify pushes OFFLINE(method, host) to every discoverer of
// method.
func (m *DiscovererManager) OfflineNotify(method string, host message.Address) {
	m.notify(method, host, message.ServiceOffline)
}

// notify snapshots the subscriber set under the lock, then sends outside
// it so a slow or dead discoverer cannot stall unrelated registrations.
// A failed send is logged and dropped; teardown of the dead connection
// cleans the index.
func (m *DiscovererManager) notify(method string, host message.Address, optype message.ServiceOptype) {
	m.mu.Lock()
	list, ok := m.discoverers[method]
	if !ok {
		m.mu.Unlock()
		return
	}
	conns := make([]transport.Conn, 0, len(list))
	for _, discoverer := range list {
		conns = append(conns, discoverer.conn)
	}
	m.mu.Unlock()

	req := &message.ServiceRequest{
		Method: method,
		Optype: optype,
		Host:   &host,
	}
	req.SetRID(uuid.NewString())
	for _, conn := range conns {
		if err := conn.Send(req); err != nil {
			suplog.S().Errorf("notify %d for method %s to a discoverer failed: %v", optype, method, err)
		}
	}
}

// PDManager is the registry server's request handler, combining the
// provider and discoverer indices.
type PDManager struct {
	providers   *ProviderManager
	discoverers *DiscovererManager
}

func NewPDManager() *PDManager {
	return &PDManager{
		providers:   NewProviderManager(),
		discoverers: NewDiscovererManager(),
	}
}

// OnServiceRequest serves REQ_SERVICE on the registry server.
func (m *PDManager) OnServiceRequest(conn transport.Conn, msg *message.ServiceRequest) {
	switch msg.Optype {
	case message.ServiceRegistry:
		suplog.S().Infof("%s registers method %s", msg.Host, msg.Method)
		m.providers.AddProvider(conn, *msg.Host, msg.Method)
		m.discoverers.OnlineNotify(msg.Method, *msg.Host)
		m.registryResponse(conn, msg)
	case message.ServiceDiscovery:
		suplog.S().Infof("discovery request for method %s", msg.Method)
		m.discoverers.AddDiscoverer(conn, msg.Method)
		m.discoveryResponse(conn, msg)
	default:
		suplog.S().Errorf("service request rid=%s carries invalid optype %d", msg.RID(), msg.Optype)
		m.errorResponse(conn, msg)
	}
}

// OnConnShutdown tears down whatever the closed connection owned: its
// provider record (removed from both indices, then OFFLINE is pushed for
// each hosted method) and its discoverer record.
func (m *PDManager) OnConnShutdown(conn transport.Conn) {
	if provider := m.providers.GetProvider(conn); provider != nil {
		suplog.S().Infof("provider %s went offline", provider.host)
		m.providers.DelProvider(conn)
		for _, method := range provider.methodList() {
			m.discoverers.OfflineNotify(method, provider.host)
		}
	}
	m.discoverers.DelDiscoverer(conn)
}

func (m *PDManager) registryResponse(conn transport.Conn, msg *message.ServiceRequest) {
	rsp := &message.ServiceResponse{
		RCode:  message.RCodeOK,
		Optype: message.ServiceRegistry,
	}
	rsp.SetRID(msg.RID())
	m.send(conn, msg, rsp)
}

func (m *PDManager) discoveryResponse(conn transport.Conn, msg *message.ServiceRequest) {
	rsp := &message.ServiceResponse{Optype: message.ServiceDiscovery}
	rsp.SetRID(msg.RID())

	hosts := m.providers.MethodHosts(msg.Method)
	if len(hosts) == 0 {
		rsp.RCode = message.RCodeNotFoundService
		m.send(conn, msg, rsp)
		return
	}
	rsp.RCode = message.RCodeOK
	rsp.Method = msg.Method
	rsp.Hosts = hosts
	m.send(conn, msg, rsp)
}

func (m *PDManager) errorResponse(conn transport.Conn, msg *message.ServiceRequest) {
	rsp := &message.ServiceResponse{
		RCode:  message.RCodeInvalidOptype,
		Optype: message.ServiceUnknown,
	}
	rsp.SetRID(msg.RID())
	m.send(conn, msg, rsp)
}

func (m *PDManager) send(conn transport.Conn, req *message.ServiceRequest, rsp *message.ServiceResponse) {
	if err := conn.Send(rsp); err != nil {
		suplog.S().Errorf("service response rid=%s failed to send: %v", req.RID(), err)
	}
}
