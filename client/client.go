package client

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/dispatcher"
	"github.com/sis-shen/suprpc-json/loadbalance"
	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// RegistryClient is used by servers to announce their methods to the
// registry server.
type RegistryClient struct {
	requestor  *Requestor
	provider   *Provider
	dispatcher *dispatcher.Dispatcher
	cli        *transport.Client
}

func NewRegistryClient(registryAddr message.Address) (*RegistryClient, error) {
	c := &RegistryClient{
		requestor:  NewRequestor(),
		dispatcher: dispatcher.New(),
	}
	c.provider = NewProvider(c.requestor)
	dispatcher.Register(c.dispatcher, message.MTypeRspService, func(conn transport.Conn, msg message.Message) {
		c.requestor.OnResponse(conn, msg)
	})

	c.cli = transport.NewClient(registryAddr)
	c.cli.SetMessageHandler(c.dispatcher.OnMessage)
	c.cli.SetCloseHandler(c.requestor.OnConnShutdown)
	if err := c.cli.Connect(); err != nil {
		return nil, errors.Wrap(err, "connect registry")
	}
	return c, nil
}

// RegistryMethod announces that host serves method.
func (c *RegistryClient) RegistryMethod(method string, host message.Address) error {
	return c.provider.RegistryMethod(c.cli.Conn(), method, host)
}

func (c *RegistryClient) Shutdown() {
	c.cli.Shutdown()
}

// DiscoveryClient resolves methods to provider endpoints through the
// registry server and receives ONLINE/OFFLINE pushes on the same
// connection.
type DiscoveryClient struct {
	requestor  *Requestor
	discoverer *Discoverer
	dispatcher *dispatcher.Dispatcher
	cli        *transport.Client
}

func NewDiscoveryClient(registryAddr message.Address, offline OfflineCallback, balancers loadbalance.Factory) (*DiscoveryClient, error) {
	c := &DiscoveryClient{
		requestor:  NewRequestor(),
		dispatcher: dispatcher.New(),
	}
	c.discoverer = NewDiscoverer(c.requestor, offline, balancers)
	dispatcher.Register(c.dispatcher, message.MTypeRspService, func(conn transport.Conn, msg message.Message) {
		c.requestor.OnResponse(conn, msg)
	})
	dispatcher.Register(c.dispatcher, message.MTypeReqService, c.discoverer.OnServiceRequest)

	c.cli = transport.NewClient(registryAddr)
	c.cli.SetMessageHandler(c.dispatcher.OnMessage)
	c.cli.SetCloseHandler(c.requestor.OnConnShutdown)
	if err := c.cli.Connect(); err != nil {
		return nil, errors.Wrap(err, "connect registry")
	}
	return c, nil
}

// ServiceDiscovery resolves method to one provider endpoint.
func (c *DiscoveryClient) ServiceDiscovery(method string) (message.Address, error) {
	return c.discoverer.ServiceDiscovery(c.cli.Conn(), method)
}

func (c *DiscoveryClient) Shutdown() {
	c.cli.Shutdown()
}

// RpcClient issues RPC calls, in one of two modes. Direct mode opens a
// single connection to the configured server. Registry mode resolves
// providers through a DiscoveryClient and lazily opens and caches one
// connection per provider host; an OFFLINE push evicts the cached
// connection for the departed host.
type RpcClient struct {
	enableDiscovery bool
	requestor       *Requestor
	caller          *RpcCaller
	dispatcher      *dispatcher.Dispatcher
	discovery       *DiscoveryClient

	direct *transport.Client

	mu    sync.Mutex
	conns map[string]*transport.Client
}

// RpcClientOption adjusts RpcClient construction.
type RpcClientOption func(*rpcClientConfig)

type rpcClientConfig struct {
	balancers loadbalance.Factory
}

// WithBalancer selects the endpoint-selection strategy used in registry
// mode. Round-robin is the default.
func WithBalancer(factory loadbalance.Factory) RpcClientOption {
	return func(cfg *rpcClientConfig) { cfg.balancers = factory }
}

// NewRpcClient builds a client. In registry mode addr is the registry
// server; in direct mode it is the RPC server itself.
func NewRpcClient(enableDiscovery bool, addr message.Address, opts ...RpcClientOption) (*RpcClient, error) {
	cfg := &rpcClientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &RpcClient{
		enableDiscovery: enableDiscovery,
		requestor:       NewRequestor(),
		dispatcher:      dispatcher.New(),
		conns:           make(map[string]*transport.Client),
	}
	c.caller = NewRpcCaller(c.requestor)
	dispatcher.Register(c.dispatcher, message.MTypeRspRPC, func(conn transport.Conn, msg message.Message) {
		c.requestor.OnResponse(conn, msg)
	})

	if enableDiscovery {
		discovery, err := NewDiscoveryClient(addr, c.evictHost, cfg.balancers)
		if err != nil {
			return nil, err
		}
		c.discovery = discovery
	} else {
		c.direct = transport.NewClient(addr)
		c.direct.SetMessageHandler(c.dispatcher.OnMessage)
		c.direct.SetCloseHandler(c.requestor.OnConnShutdown)
		if err := c.direct.Connect(); err != nil {
			return nil, errors.Wrap(err, "connect server")
		}
	}
	return c, nil
}

// Call invokes method synchronously and returns the extracted result.
func (c *RpcClient) Call(method string, params map[string]any) (any, error) {
	conn, err := c.connFor(method)
	if err != nil {
		return nil, err
	}
	return c.caller.Call(conn, method, params)
}

// CallAsync invokes method and returns a future for the result.
func (c *RpcClient) CallAsync(method string, params map[string]any) (*ResultFuture, error) {
	conn, err := c.connFor(method)
	if err != nil {
		return nil, err
	}
	return c.caller.CallAsync(conn, method, params)
}

// CallWithCallback invokes method; cb runs when the result arrives.
func (c *RpcClient) CallWithCallback(method string, params map[string]any, cb ResultCallback) error {
	conn, err := c.connFor(method)
	if err != nil {
		return err
	}
	return c.caller.CallWithCallback(conn, method, params, cb)
}

func (c *RpcClient) connFor(method string) (transport.Conn, error) {
	if !c.enableDiscovery {
		if !c.direct.Connected() {
			return nil, errors.New("server connection is down")
		}
		return c.direct.Conn(), nil
	}

	host, err := c.discovery.ServiceDiscovery(method)
	if err != nil {
		return nil, err
	}
	cli, err := c.hostClient(host)
	if err != nil {
		return nil, err
	}
	return cli.Conn(), nil
}

// hostClient returns the cached connection for host, dialing on first
// use.
func (c *RpcClient) hostClient(host message.Address) (*transport.Client, error) {
	key := host.String()
	c.mu.Lock()
	if cli, ok := c.conns[key]; ok && cli.Connected() {
		c.mu.Unlock()
		return cli, nil
	}
	c.mu.Unlock()

	cli := transport.NewClient(host)
	cli.SetMessageHandler(c.dispatcher.OnMessage)
	cli.SetCloseHandler(func(conn transport.Conn) {
		c.requestor.OnConnShutdown(conn)
		c.dropClient(key, cli)
	})
	if err := cli.Connect(); err != nil {
		return nil, errors.Wrapf(err, "connect provider %s", key)
	}

	c.mu.Lock()
	// A concurrent call may have connected first; keep the winner.
	if existing, ok := c.conns[key]; ok && existing.Connected() {
		c.mu.Unlock()
		cli.Shutdown()
		return existing, nil
	}
	c.conns[key] = cli
	c.mu.Unlock()
	return cli, nil
}

// evictHost is the discovery offline callback: drop and close the cached
// connection to a departed provider.
func (c *RpcClient) evictHost(host message.Address) {
	key := host.String()
	c.mu.Lock()
	cli, ok := c.conns[key]
	if ok {
		delete(c.conns, key)
	}
	c.mu.Unlock()
	if ok {
		suplog.S().Infof("evicting connection to offline provider %s", key)
		cli.Shutdown()
	}
}

func (c *RpcClient) dropClient(key string, cli *transport.Client) {
	c.mu.Lock()
	if current, ok := c.conns[key]; ok && current == cli {
		delete(c.conns, key)
	}
	c.mu.Unlock()
}

// Shutdown closes every connection the client owns.
func (c *RpcClient) Shutdown() {
	if c.direct != nil {
		c.direct.Shutdown()
	}
	if c.discovery != nil {
		c.discovery.Shutdown()
	}
	c.mu.Lock()
	conns := make([]*transport.Client, 0, len(c.conns))
	for _, cli := range c.conns {
		conns = append(conns, cli)
	}
	c.conns = make(map[string]*transport.Client)
	c.mu.Unlock()
	for _, cli := range conns {
		cli.Shutdown()
	}
}

// TopicClient connects to a topic server and exposes the pub/sub
// surface.
type TopicClient struct {
	requestor  *Requestor
	topics     *TopicManager
	dispatcher *dispatcher.Dispatcher
	cli        *transport.Client
}

func NewTopicClient(addr message.Address) (*TopicClient, error) {
	c := &TopicClient{
		requestor:  NewRequestor(),
		dispatcher: dispatcher.New(),
	}
	c.topics = NewTopicManager(c.requestor)
	dispatcher.Register(c.dispatcher, message.MTypeRspTopic, func(conn transport.Conn, msg message.Message) {
		c.requestor.OnResponse(conn, msg)
	})
	dispatcher.Register(c.dispatcher, message.MTypeReqTopic, c.topics.OnPublish)

	c.cli = transport.NewClient(addr)
	c.cli.SetMessageHandler(c.dispatcher.OnMessage)
	c.cli.SetCloseHandler(c.requestor.OnConnShutdown)
	if err := c.cli.Connect(); err != nil {
		return nil, errors.Wrap(err, "connect topic server")
	}
	return c, nil
}

func (c *TopicClient) Create(key string) error {
	return c.topics.Create(c.cli.Conn(), key)
}

func (c *TopicClient) Remove(key string) error {
	return c.topics.Remove(c.cli.Conn(), key)
}

func (c *TopicClient) Subscribe(key string, cb SubCallback) error {
	return c.topics.Subscribe(c.cli.Conn(), key, cb)
}

func (c *TopicClient) Cancel(key string) error {
	return c.topics.Cancel(c.cli.Conn(), key)
}

func (c *TopicClient) Publish(key, msg string) error {
	return c.topics.Publish(c.cli.Conn(), key, msg)
}

func (c *TopicClient) Shutdown() {
	c.cli.Shutdown()
}
