package message

import (
	"github.com/pkg/errors"
)

// Message is the envelope every wire message satisfies. The rid
// correlates a response to its request and is copied verbatim from
// request to response; the body is the variant's exported fields.
type Message interface {
	RID() string
	SetRID(rid string)
	MType() MType
	// Check validates the decoded body. A failed check is a protocol
	// violation (INVALID_MSG) and the connection carrying it is torn down.
	Check() error
}

// Response is satisfied by the three response variants. Consumers must
// treat Code as authoritative and ignore other fields when it is not OK.
type Response interface {
	Message
	Code() RCode
	SetCode(code RCode)
}

// base carries the envelope fields shared by all variants. It is not
// part of the JSON body.
type base struct {
	rid string
}

func (b *base) RID() string       { return b.rid }
func (b *base) SetRID(rid string) { b.rid = rid }

// RpcRequest asks a server to invoke method with the given parameters.
type RpcRequest struct {
	base
	Method string         `json:"method"`
	Params map[string]any `json:"parameters"`
}

func (m *RpcRequest) MType() MType { return MTypeReqRPC }

func (m *RpcRequest) Check() error {
	if m.Method == "" {
		return errors.New("rpc request has no method name")
	}
	if m.Params == nil {
		return errors.New("rpc request has no parameters object")
	}
	return nil
}

// RpcResponse carries the invocation status and, when Code is OK, the
// handler's result value.
type RpcResponse struct {
	base
	RCode  RCode `json:"rcode"`
	Result any   `json:"result"`
}

func (m *RpcResponse) MType() MType       { return MTypeRspRPC }
func (m *RpcResponse) Code() RCode        { return m.RCode }
func (m *RpcResponse) SetCode(code RCode) { m.RCode = code }

func (m *RpcResponse) Check() error {
	if _, ok := rcodeReasons[m.RCode]; !ok {
		return errors.Errorf("rpc response has unknown rcode %d", m.RCode)
	}
	return nil
}

// TopicRequest carries one topic operation. TopicMsg is required only
// for PUBLISH; a PUBLISH is also what subscribers receive on fan-out.
type TopicRequest struct {
	base
	TopicKey string      `json:"topic_key"`
	Optype   TopicOptype `json:"optype"`
	TopicMsg string      `json:"topic_msg,omitempty"`
}

func (m *TopicRequest) MType() MType { return MTypeReqTopic }

func (m *TopicRequest) Check() error {
	if m.TopicKey == "" {
		return errors.New("topic request has no topic key")
	}
	if m.Optype < TopicCreate || m.Optype > TopicPublish {
		return errors.Errorf("topic request has unknown optype %d", m.Optype)
	}
	if m.Optype == TopicPublish && m.TopicMsg == "" {
		return errors.New("topic publish has no message content")
	}
	return nil
}

// TopicResponse acknowledges a topic operation.
type TopicResponse struct {
	base
	RCode RCode `json:"rcode"`
}

func (m *TopicResponse) MType() MType       { return MTypeRspTopic }
func (m *TopicResponse) Code() RCode        { return m.RCode }
func (m *TopicResponse) SetCode(code RCode) { m.RCode = code }

func (m *TopicResponse) Check() error {
	if _, ok := rcodeReasons[m.RCode]; !ok {
		return errors.Errorf("topic response has unknown rcode %d", m.RCode)
	}
	return nil
}

// ServiceRequest carries one registry operation. Host is required for
// every optype except DISCOVERY; ONLINE and OFFLINE are pushed by the
// registry server to subscribed discoverers.
type ServiceRequest struct {
	base
	Method string        `json:"method"`
	Optype ServiceOptype `json:"optype"`
	Host   *Address      `json:"host,omitempty"`
}

func (m *ServiceRequest) MType() MType { return MTypeReqService }

func (m *ServiceRequest) Check() error {
	if m.Method == "" {
		return errors.New("service request has no method name")
	}
	if m.Optype < ServiceRegistry || m.Optype > ServiceUnknown {
		return errors.Errorf("service request has unknown optype %d", m.Optype)
	}
	if m.Optype != ServiceDiscovery {
		if m.Host == nil || m.Host.IP == "" || m.Host.Port <= 0 {
			return errors.New("service request has no valid host")
		}
	}
	return nil
}

// ServiceResponse acknowledges a registry operation. DISCOVERY responses
// with Code OK also carry the method and its current host list.
type ServiceResponse struct {
	base
	RCode  RCode         `json:"rcode"`
	Optype ServiceOptype `json:"optype"`
	Method string        `json:"method,omitempty"`
	Hosts  []Address     `json:"host,omitempty"`
}

func (m *ServiceResponse) MType() MType       { return MTypeRspService }
func (m *ServiceResponse) Code() RCode        { return m.RCode }
func (m *ServiceResponse) SetCode(code RCode) { m.RCode = code }

func (m *ServiceResponse) Check() error {
	if _, ok := rcodeReasons[m.RCode]; !ok {
		return errors.Errorf("service response has unknown rcode %d", m.RCode)
	}
	if m.Optype < ServiceRegistry || m.Optype > ServiceUnknown {
		return errors.Errorf("service response has unknown optype %d", m.Optype)
	}
	if m.Optype == ServiceDiscovery && m.RCode == RCodeOK {
		if m.Method == "" || m.Hosts == nil {
			return errors.New("service discovery response is missing method or hosts")
		}
	}
	return nil
}

// New is the factory mapping a wire MType to an empty message of the
// matching variant. Unknown types are an ERROR_MSGTYPE protocol failure
// at the caller.
func New(mtype MType) (Message, error) {
	switch mtype {
	case MTypeReqRPC:
		return &RpcRequest{}, nil
	case MTypeRspRPC:
		return &RpcResponse{}, nil
	case MTypeReqTopic:
		return &TopicRequest{}, nil
	case MTypeRspTopic:
		return &TopicResponse{}, nil
	case MTypeReqService:
		return &ServiceRequest{}, nil
	case MTypeRspService:
		return &ServiceResponse{}, nil
	}
	return nil, errors.Errorf("unknown message type %d", mtype)
}

// NewResponseFor builds the response variant matching a request, with the
// rid already copied over. Used both for normal replies and for the
// synthetic DISCONNECTED completions on connection loss.
func NewResponseFor(req Message) (Response, bool) {
	var rsp Response
	switch req.MType() {
	case MTypeReqRPC:
		rsp = &RpcResponse{}
	case MTypeReqTopic:
		rsp = &TopicResponse{}
	case MTypeReqService:
		rsp = &ServiceResponse{}
	default:
		return nil, false
	}
	rsp.SetRID(req.RID())
	return rsp, true
}
