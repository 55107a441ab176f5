package server

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/client"
	"github.com/sis-shen/suprpc-json/dispatcher"
	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/middleware"
	"github.com/sis-shen/suprpc-json/registry"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// etcdTTL is the lease TTL for mirrored registrations; KeepAlive renews
// it until the server dies.
const etcdTTL = 10

// RegistryServer hosts the service registry: providers register methods,
// discoverers resolve them and receive ONLINE/OFFLINE pushes.
type RegistryServer struct {
	pd         *PDManager
	dispatcher *dispatcher.Dispatcher
	server     *transport.Server
}

func NewRegistryServer(port int) *RegistryServer {
	s := &RegistryServer{
		pd:         NewPDManager(),
		dispatcher: dispatcher.New(),
		server:     transport.NewServer(port),
	}
	dispatcher.Register(s.dispatcher, message.MTypeReqService, s.pd.OnServiceRequest)
	s.server.SetMessageHandler(s.dispatcher.OnMessage)
	s.server.SetCloseHandler(s.pd.OnConnShutdown)
	return s
}

// Start runs the accept loop; it blocks until Stop.
func (s *RegistryServer) Start() error {
	return s.server.Start()
}

func (s *RegistryServer) Stop() {
	s.server.Stop()
}

// TopicServer hosts durable named topics with subscription and fan-out
// publication.
type TopicServer struct {
	topics     *TopicManager
	dispatcher *dispatcher.Dispatcher
	server     *transport.Server
}

func NewTopicServer(port int) *TopicServer {
	s := &TopicServer{
		topics:     NewTopicManager(),
		dispatcher: dispatcher.New(),
		server:     transport.NewServer(port),
	}
	dispatcher.Register(s.dispatcher, message.MTypeReqTopic, s.topics.OnTopicRequest)
	s.server.SetMessageHandler(s.dispatcher.OnMessage)
	s.server.SetCloseHandler(s.topics.OnConnShutdown)
	return s
}

// Start runs the accept loop; it blocks until Stop.
func (s *TopicServer) Start() error {
	return s.server.Start()
}

func (s *TopicServer) Stop() {
	s.server.Stop()
}

// RpcServer hosts RPC methods. With a registry configured it announces
// every registered method there; with an etcd mirror configured it
// announces them in etcd as well.
type RpcServer struct {
	accessAddr message.Address
	router     *RpcRouter
	dispatcher *dispatcher.Dispatcher
	server     *transport.Server

	registryClient *client.RegistryClient
	mirror         registry.Registry

	mu       sync.Mutex
	mirrored []string
}

// RpcServerOption adjusts RpcServer construction.
type RpcServerOption func(*rpcServerConfig)

type rpcServerConfig struct {
	registryAddr  *message.Address
	etcdEndpoints []string
	middlewares   []middleware.Middleware
}

// WithRegistry points the server at a registry server; every registered
// method is announced there under the access address.
func WithRegistry(addr message.Address) RpcServerOption {
	return func(cfg *rpcServerConfig) { cfg.registryAddr = &addr }
}

// WithEtcdMirror additionally announces registered methods in etcd.
func WithEtcdMirror(endpoints []string) RpcServerOption {
	return func(cfg *rpcServerConfig) { cfg.etcdEndpoints = endpoints }
}

// WithMiddleware wraps RPC dispatch in the given middleware chain.
func WithMiddleware(mw ...middleware.Middleware) RpcServerOption {
	return func(cfg *rpcServerConfig) { cfg.middlewares = append(cfg.middlewares, mw...) }
}

// NewRpcServer builds an RPC server listening on accessAddr.Port and
// advertising accessAddr to registries. The two differ in spirit: the
// listener binds all interfaces, the advertised address must be routable
// by clients.
func NewRpcServer(accessAddr message.Address, opts ...RpcServerOption) (*RpcServer, error) {
	cfg := &rpcServerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &RpcServer{
		accessAddr: accessAddr,
		router:     NewRpcRouter(),
		dispatcher: dispatcher.New(),
		server:     transport.NewServer(accessAddr.Port),
	}
	if len(cfg.middlewares) > 0 {
		s.router.Use(cfg.middlewares...)
	}
	dispatcher.Register(s.dispatcher, message.MTypeReqRPC, s.router.OnRpcRequest)
	s.server.SetMessageHandler(s.dispatcher.OnMessage)

	if cfg.registryAddr != nil {
		registryClient, err := client.NewRegistryClient(*cfg.registryAddr)
		if err != nil {
			return nil, errors.Wrap(err, "registry client")
		}
		s.registryClient = registryClient
	}
	if len(cfg.etcdEndpoints) > 0 {
		mirror, err := registry.NewEtcdRegistry(cfg.etcdEndpoints)
		if err != nil {
			return nil, errors.Wrap(err, "etcd mirror")
		}
		s.mirror = mirror
	}
	return s, nil
}

// RegisterMethod exposes a method locally and announces it to the
// configured registry and mirror.
func (s *RpcServer) RegisterMethod(desc *ServiceDescribe) error {
	s.router.RegisterMethod(desc)
	if s.registryClient != nil {
		if err := s.registryClient.RegistryMethod(desc.Method(), s.accessAddr); err != nil {
			return err
		}
	}
	if s.mirror != nil {
		if err := s.mirror.Register(desc.Method(), s.accessAddr, etcdTTL); err != nil {
			suplog.S().Errorf("etcd mirror registration for %s failed: %v", desc.Method(), err)
		} else {
			s.mu.Lock()
			s.mirrored = append(s.mirrored, desc.Method())
			s.mu.Unlock()
		}
	}
	return nil
}

// Use appends middleware to the dispatch chain. Must be called before
// the first request is served.
func (s *RpcServer) Use(mw ...middleware.Middleware) {
	s.router.Use(mw...)
}

// Start runs the accept loop; it blocks until Stop.
func (s *RpcServer) Start() error {
	return s.server.Start()
}

// Stop closes the listener, every live connection, and the registry
// link, which makes the registry push OFFLINE for this server's methods.
func (s *RpcServer) Stop() {
	if s.registryClient != nil {
		s.registryClient.Shutdown()
	}
	if s.mirror != nil {
		s.mu.Lock()
		mirrored := append([]string(nil), s.mirrored...)
		s.mu.Unlock()
		for _, method := range mirrored {
			if err := s.mirror.Deregister(method, s.accessAddr); err != nil {
				suplog.S().Errorf("etcd mirror deregistration for %s failed: %v", method, err)
			}
		}
	}
	s.server.Stop()
}
