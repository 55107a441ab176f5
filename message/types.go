// Package message defines the typed wire messages exchanged between
// suprpc clients and servers.
//
// Every message is an envelope of (rid, mtype) plus a JSON body. The six
// variants and their field names are part of the wire contract, as are
// the enum ordinals — they must not be renumbered.
package message

import "strconv"

// MType tags the message variant. Carried as a 4-byte big-endian integer
// in the frame header.
type MType int32

const (
	MTypeReqRPC     MType = 0 // client → server RPC request
	MTypeRspRPC     MType = 1 // server → client RPC response
	MTypeReqTopic   MType = 2 // topic operation request (also used for fan-out delivery)
	MTypeRspTopic   MType = 3 // topic operation response
	MTypeReqService MType = 4 // registry operation request (also ONLINE/OFFLINE push)
	MTypeRspService MType = 5 // registry operation response
)

// RCode is the status code carried in every response body.
type RCode int

const (
	RCodeOK RCode = iota
	RCodeParseFailed
	RCodeErrorMsgType
	RCodeInvalidMsg
	RCodeDisconnected
	RCodeInvalidParams
	RCodeNotFoundService
	RCodeInvalidOptype
	RCodeNotFoundTopic
	RCodeInternalError
)

var rcodeReasons = map[RCode]string{
	RCodeOK:              "success",
	RCodeParseFailed:     "message parse failed",
	RCodeErrorMsgType:    "invalid message type",
	RCodeInvalidMsg:      "invalid message",
	RCodeDisconnected:    "connection lost",
	RCodeInvalidParams:   "invalid parameters",
	RCodeNotFoundService: "service not found",
	RCodeInvalidOptype:   "invalid operation type",
	RCodeNotFoundTopic:   "topic not found",
	RCodeInternalError:   "internal error",
}

// ErrReason maps an RCode to a human-readable reason for logs and errors.
func ErrReason(code RCode) string {
	if reason, ok := rcodeReasons[code]; ok {
		return reason
	}
	return "unknown error"
}

// TopicOptype selects the topic operation in a TopicRequest.
type TopicOptype int

const (
	TopicCreate TopicOptype = iota
	TopicRemove
	TopicSubscribe
	TopicCancel
	TopicPublish
)

// ServiceOptype selects the registry operation in a ServiceRequest or
// reports it back in a ServiceResponse.
type ServiceOptype int

const (
	ServiceRegistry ServiceOptype = iota
	ServiceDiscovery
	ServiceOnline
	ServiceOffline
	ServiceUnknown
)

// Address identifies a provider endpoint.
type Address struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

func (a Address) String() string {
	return a.IP + ":" + strconv.Itoa(a.Port)
}

func (a Address) Equal(other Address) bool {
	return a.IP == other.IP && a.Port == other.Port
}
