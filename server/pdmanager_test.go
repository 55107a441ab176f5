package server

import (
	"testing"

	"github.com/sis-shen/suprpc-json/message"
)

var (
	hostA = message.Address{IP: "127.0.0.1", Port: 9091}
	hostB = message.Address{IP: "127.0.0.1", Port: 9092}
)

func serviceRequest(method string, optype message.ServiceOptype, host *message.Address) *message.ServiceRequest {
	req := &message.ServiceRequest{Method: method, Optype: optype, Host: host}
	req.SetRID("rid-pd")
	return req
}

func lastServiceResponse(t *testing.T, conn *fakeConn) *message.ServiceResponse {
	t.Helper()
	sent := conn.sentMessages()
	if len(sent) == 0 {
		t.Fatal("no response sent")
	}
	rsp, ok := sent[len(sent)-1].(*message.ServiceResponse)
	if !ok {
		t.Fatalf("expect *ServiceResponse, got %T", sent[len(sent)-1])
	}
	return rsp
}

func TestRegistryThenDiscovery(t *testing.T) {
	pd := NewPDManager()

	provider := &fakeConn{}
	pd.OnServiceRequest(provider, serviceRequest("Echo", message.ServiceRegistry, &hostA))
	if rsp := lastServiceResponse(t, provider); rsp.RCode != message.RCodeOK || rsp.Optype != message.ServiceRegistry {
		t.Fatalf("registry response: %+v", rsp)
	}

	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))
	rsp := lastServiceResponse(t, discoverer)
	if rsp.RCode != message.RCodeOK {
		t.Fatalf("discovery failed: %d", rsp.RCode)
	}
	if rsp.Method != "Echo" || len(rsp.Hosts) != 1 || !rsp.Hosts[0].Equal(hostA) {
		t.Fatalf("discovery response: %+v", rsp)
	}
}

func TestDiscoveryRegistrationOrder(t *testing.T) {
	pd := NewPDManager()
	first := &fakeConn{}
	second := &fakeConn{}
	pd.OnServiceRequest(first, serviceRequest("Echo", message.ServiceRegistry, &hostA))
	pd.OnServiceRequest(second, serviceRequest("Echo", message.ServiceRegistry, &hostB))

	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))
	rsp := lastServiceResponse(t, discoverer)
	if len(rsp.Hosts) != 2 || !rsp.Hosts[0].Equal(hostA) || !rsp.Hosts[1].Equal(hostB) {
		t.Fatalf("hosts must keep registration order, got %v", rsp.Hosts)
	}
}

func TestDiscoveryNoProviders(t *testing.T) {
	pd := NewPDManager()
	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))
	if rsp := lastServiceResponse(t, discoverer); rsp.RCode != message.RCodeNotFoundService {
		t.Fatalf("expect NOT_FOUND_SERVICE, got %d", rsp.RCode)
	}

	// The discoverer must still be installed: a later REGISTRY pushes
	// ONLINE to it.
	provider := &fakeConn{}
	pd.OnServiceRequest(provider, serviceRequest("Echo", message.ServiceRegistry, &hostA))

	var online *message.ServiceRequest
	for _, msg := range discoverer.sentMessages() {
		if req, ok := msg.(*message.ServiceRequest); ok && req.Optype == message.ServiceOnline {
			online = req
		}
	}
	if online == nil {
		t.Fatal("discoverer with empty first discovery did not receive ONLINE")
	}
	if online.Method != "Echo" || !online.Host.Equal(hostA) {
		t.Fatalf("ONLINE payload: %+v", online)
	}
}

func TestInvalidOptype(t *testing.T) {
	pd := NewPDManager()
	conn := &fakeConn{}
	pd.OnServiceRequest(conn, serviceRequest("Echo", message.ServiceOnline, &hostA))
	rsp := lastServiceResponse(t, conn)
	if rsp.RCode != message.RCodeInvalidOptype || rsp.Optype != message.ServiceUnknown {
		t.Fatalf("expect INVALID_OPTYPE/UNKNOWN, got %+v", rsp)
	}
}

func TestOnlinePushOnRegistry(t *testing.T) {
	pd := NewPDManager()

	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))

	provider := &fakeConn{}
	pd.OnServiceRequest(provider, serviceRequest("Echo", message.ServiceRegistry, &hostA))

	found := false
	for _, msg := range discoverer.sentMessages() {
		if req, ok := msg.(*message.ServiceRequest); ok &&
			req.Optype == message.ServiceOnline && req.Method == "Echo" && req.Host.Equal(hostA) {
			found = true
		}
	}
	if !found {
		t.Fatal("discoverer did not receive ONLINE push")
	}
}

func TestOfflinePushOnProviderClose(t *testing.T) {
	pd := NewPDManager()

	provider := &fakeConn{}
	pd.OnServiceRequest(provider, serviceRequest("Echo", message.ServiceRegistry, &hostA))
	pd.OnServiceRequest(provider, serviceRequest("Sum", message.ServiceRegistry, &hostA))

	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))
	pd.OnServiceRequest(discoverer, serviceRequest("Sum", message.ServiceDiscovery, nil))

	pd.OnConnShutdown(provider)

	offline := map[string]bool{}
	for _, msg := range discoverer.sentMessages() {
		if req, ok := msg.(*message.ServiceRequest); ok && req.Optype == message.ServiceOffline {
			if !req.Host.Equal(hostA) {
				t.Fatalf("OFFLINE for wrong host: %v", req.Host)
			}
			offline[req.Method] = true
		}
	}
	if !offline["Echo"] || !offline["Sum"] {
		t.Fatalf("expect OFFLINE for every hosted method, got %v", offline)
	}

	// The provider is gone from the index.
	probe := &fakeConn{}
	pd.OnServiceRequest(probe, serviceRequest("Echo", message.ServiceDiscovery, nil))
	if rsp := lastServiceResponse(t, probe); rsp.RCode != message.RCodeNotFoundService {
		t.Fatalf("provider not removed: %d", rsp.RCode)
	}
}

func TestDiscovererRemovedOnClose(t *testing.T) {
	pd := NewPDManager()

	discoverer := &fakeConn{}
	pd.OnServiceRequest(discoverer, serviceRequest("Echo", message.ServiceDiscovery, nil))
	pd.OnConnShutdown(discoverer)

	before := len(discoverer.sentMessages())
	provider := &fakeConn{}
	pd.OnServiceRequest(provider, serviceRequest("Echo", message.ServiceRegistry, &hostA))
	if len(discoverer.sentMessages()) != before {
		t.Fatal("closed discoverer still receives notifications")
	}
}
