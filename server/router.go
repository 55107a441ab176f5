// Package server implements the server half of suprpc: the schema-
// validated RPC router, the registry-side provider/discoverer manager,
// the topic manager, and the composed server types.
package server

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/middleware"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// VType declares the expected JSON type of a parameter field or return
// value.
type VType int

const (
	VBool VType = iota
	VIntegral
	VNumeric
	VString
	VArray
	VObject
)

// ParamDesc declares one required parameter field.
type ParamDesc struct {
	Name string
	Type VType
}

// ServiceHandler is the business callback bound to a method. A returned
// error — or a panic — becomes an INTERNAL_ERROR response.
type ServiceHandler func(params map[string]any) (any, error)

// ServiceDescribe binds a method name to its parameter schema, return
// type and handler.
type ServiceDescribe struct {
	method     string
	params     []ParamDesc
	returnType VType
	handler    ServiceHandler
}

func (d *ServiceDescribe) Method() string { return d.method }

// ParamCheck verifies that every declared field is present with the
// declared type. Extra fields are allowed.
func (d *ServiceDescribe) ParamCheck(params map[string]any) bool {
	for _, desc := range d.params {
		val, ok := params[desc.Name]
		if !ok {
			suplog.S().Errorf("method %s: required parameter %q is missing", d.method, desc.Name)
			return false
		}
		if !typeCheck(desc.Type, val) {
			suplog.S().Errorf("method %s: parameter %q has the wrong type", d.method, desc.Name)
			return false
		}
	}
	return true
}

// Call invokes the handler and type-checks its result. The second return
// is false on handler error, panic, or return-type mismatch.
func (d *ServiceDescribe) Call(params map[string]any) (result any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			suplog.S().Errorf("method %s: handler panicked: %v", d.method, r)
			result, ok = nil, false
		}
	}()
	result, err := d.handler(params)
	if err != nil {
		suplog.S().Errorf("method %s: handler failed: %v", d.method, err)
		return nil, false
	}
	if !typeCheck(d.returnType, result) {
		suplog.S().Errorf("method %s: handler result does not match the declared return type", d.method)
		return nil, false
	}
	return result, true
}

// typeCheck matches a decoded JSON value against a VType. Values coming
// off the wire are float64/string/bool/[]any/map[string]any; handler
// results may also be native Go integer types.
func typeCheck(t VType, val any) bool {
	switch t {
	case VBool:
		_, ok := val.(bool)
		return ok
	case VIntegral:
		switch v := val.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == math.Trunc(v)
		}
		return false
	case VNumeric:
		switch val.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case VString:
		_, ok := val.(string)
		return ok
	case VArray:
		_, ok := val.([]any)
		return ok
	case VObject:
		_, ok := val.(map[string]any)
		return ok
	}
	return false
}

// SDescribeFactory assembles a ServiceDescribe step by step.
type SDescribeFactory struct {
	method     string
	params     []ParamDesc
	returnType VType
	handler    ServiceHandler
}

func NewSDescribeFactory() *SDescribeFactory {
	return &SDescribeFactory{returnType: VObject}
}

func (f *SDescribeFactory) SetMethodName(method string) *SDescribeFactory {
	f.method = method
	return f
}

func (f *SDescribeFactory) AppendParamDesc(name string, vtype VType) *SDescribeFactory {
	f.params = append(f.params, ParamDesc{Name: name, Type: vtype})
	return f
}

func (f *SDescribeFactory) SetReturnType(vtype VType) *SDescribeFactory {
	f.returnType = vtype
	return f
}

func (f *SDescribeFactory) SetCallback(handler ServiceHandler) *SDescribeFactory {
	f.handler = handler
	return f
}

func (f *SDescribeFactory) Build() (*ServiceDescribe, error) {
	if f.method == "" {
		return nil, errors.New("service describe has no method name")
	}
	if f.handler == nil {
		return nil, errors.Errorf("service describe for %s has no handler", f.method)
	}
	return &ServiceDescribe{
		method:     f.method,
		params:     f.params,
		returnType: f.returnType,
		handler:    f.handler,
	}, nil
}

// ServiceManager is the method registry consulted on every REQ_RPC.
type ServiceManager struct {
	mu       sync.Mutex
	services map[string]*ServiceDescribe
}

func NewServiceManager() *ServiceManager {
	return &ServiceManager{services: make(map[string]*ServiceDescribe)}
}

func (m *ServiceManager) Insert(desc *ServiceDescribe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[desc.method] = desc
}

func (m *ServiceManager) Select(method string) *ServiceDescribe {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.services[method]
}

func (m *ServiceManager) Remove(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.services, method)
}

// RpcRouter serves REQ_RPC: method lookup, parameter validation, handler
// invocation, response. Every branch answers exactly one RSP_RPC with
// the request's rid.
type RpcRouter struct {
	manager *ServiceManager

	mu          sync.Mutex
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
}

func NewRpcRouter() *RpcRouter {
	return &RpcRouter{manager: NewServiceManager()}
}

// RegisterMethod adds a method to the registry.
func (r *RpcRouter) RegisterMethod(desc *ServiceDescribe) {
	r.manager.Insert(desc)
}

// Use appends a middleware. Must be called before the first request is
// served.
func (r *RpcRouter) Use(mw ...middleware.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw...)
	r.handler = nil
}

// OnRpcRequest is the dispatcher handler for REQ_RPC.
func (r *RpcRouter) OnRpcRequest(conn transport.Conn, req *message.RpcRequest) {
	rsp := r.chain()(context.Background(), req)
	if err := conn.Send(rsp); err != nil {
		suplog.S().Errorf("method %s rid=%s: failed to send response: %v", req.Method, req.RID(), err)
	}
}

func (r *RpcRouter) chain() middleware.HandlerFunc {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handler == nil {
		r.handler = middleware.Chain(r.middlewares...)(r.route)
	}
	return r.handler
}

func (r *RpcRouter) route(_ context.Context, req *message.RpcRequest) *message.RpcResponse {
	desc := r.manager.Select(req.Method)
	if desc == nil {
		suplog.S().Errorf("method %s rid=%s: not found", req.Method, req.RID())
		return response(req, nil, message.RCodeNotFoundService)
	}
	if !desc.ParamCheck(req.Params) {
		suplog.S().Errorf("method %s rid=%s: parameter validation failed", req.Method, req.RID())
		return response(req, nil, message.RCodeInvalidParams)
	}
	result, ok := desc.Call(req.Params)
	if !ok {
		return response(req, nil, message.RCodeInternalError)
	}
	return response(req, result, message.RCodeOK)
}

func response(req *message.RpcRequest, result any, code message.RCode) *message.RpcResponse {
	rsp := &message.RpcResponse{RCode: code, Result: result}
	rsp.SetRID(req.RID())
	return rsp
}
