package client

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// SubCallback handles one delivered topic message.
type SubCallback func(topicKey, topicMsg string)

// TopicManager is the client half of pub/sub: it issues topic operations
// and dispatches inbound PUBLISH deliveries to subscription callbacks.
type TopicManager struct {
	mu        sync.Mutex
	requestor *Requestor
	callbacks map[string]SubCallback
}

func NewTopicManager(requestor *Requestor) *TopicManager {
	return &TopicManager{
		requestor: requestor,
		callbacks: make(map[string]SubCallback),
	}
}

func (t *TopicManager) Create(conn transport.Conn, key string) error {
	return t.commonRequest(conn, key, message.TopicCreate, "")
}

func (t *TopicManager) Remove(conn transport.Conn, key string) error {
	return t.commonRequest(conn, key, message.TopicRemove, "")
}

// Subscribe installs cb for key, then asks the server to subscribe this
// connection. The callback is installed first so a publish racing the
// subscribe ack is not dropped; it is removed again if the server
// refuses.
func (t *TopicManager) Subscribe(conn transport.Conn, key string, cb SubCallback) error {
	t.addSubscribe(key, cb)
	if err := t.commonRequest(conn, key, message.TopicSubscribe, ""); err != nil {
		t.delSubscribe(key)
		return err
	}
	return nil
}

func (t *TopicManager) Cancel(conn transport.Conn, key string) error {
	t.delSubscribe(key)
	return t.commonRequest(conn, key, message.TopicCancel, "")
}

func (t *TopicManager) Publish(conn transport.Conn, key, msg string) error {
	return t.commonRequest(conn, key, message.TopicPublish, msg)
}

// OnPublish delivers a fanned-out topic message to its subscription
// callback.
func (t *TopicManager) OnPublish(conn transport.Conn, msg *message.TopicRequest) {
	if msg.Optype != message.TopicPublish {
		suplog.S().Errorf("topic %s: unexpected inbound optype %d", msg.TopicKey, msg.Optype)
		return
	}
	cb := t.getSubscribe(msg.TopicKey)
	if cb == nil {
		suplog.S().Errorf("topic %s: message delivered but no subscription callback installed", msg.TopicKey)
		return
	}
	cb(msg.TopicKey, msg.TopicMsg)
}

func (t *TopicManager) addSubscribe(key string, cb SubCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[key] = cb
}

func (t *TopicManager) delSubscribe(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callbacks, key)
}

func (t *TopicManager) getSubscribe(key string) SubCallback {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.callbacks[key]
}

func (t *TopicManager) commonRequest(conn transport.Conn, key string, optype message.TopicOptype, topicMsg string) error {
	req := &message.TopicRequest{TopicKey: key, Optype: optype}
	if optype == message.TopicPublish {
		req.TopicMsg = topicMsg
	}
	req.SetRID(uuid.NewString())

	msg, err := t.requestor.SendSync(conn, req)
	if err != nil {
		return errors.Wrapf(err, "topic %s optype %d", key, optype)
	}
	rsp, ok := msg.(*message.TopicResponse)
	if !ok {
		return errors.Errorf("topic %s: unexpected response type %T", key, msg)
	}
	if rsp.RCode != message.RCodeOK {
		return errors.Errorf("topic %s operation failed: %s", key, message.ErrReason(rsp.RCode))
	}
	return nil
}
