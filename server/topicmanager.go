package server

import (
	"sync"

	"github.com/sis-shen/suprpc-json/message"
	"github.com/sis-shen/suprpc-json/suplog"
	"github.com/sis-shen/suprpc-json/transport"
)

// topicSubscriber tracks one subscribing connection and the topic keys
// it holds, so connection close can unsubscribe from everything cheaply.
type topicSubscriber struct {
	mu     sync.Mutex
	conn   transport.Conn
	topics map[string]struct{}
}

func newTopicSubscriber(conn transport.Conn) *topicSubscriber {
	return &topicSubscriber{conn: conn, topics: make(map[string]struct{})}
}

func (s *topicSubscriber) appendTopic(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[key] = struct{}{}
}

func (s *topicSubscriber) removeTopic(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.topics, key)
}

func (s *topicSubscriber) topicList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.topics))
	for key := range s.topics {
		keys = append(keys, key)
	}
	return keys
}

// topic owns the subscriber set of one named channel.
type topic struct {
	mu          sync.Mutex
	key         string
	subscribers map[*topicSubscriber]struct{}
}

func newTopic(key string) *topic {
	return &topic{key: key, subscribers: make(map[*topicSubscriber]struct{})}
}

func (t *topic) appendSubscriber(sub *topicSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[sub] = struct{}{}
}

func (t *topic) removeSubscriber(sub *topicSubscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subscribers, sub)
}

// pushMessage fans msg out to every current subscriber. The set is
// snapshotted under the topic lock and the sends happen outside it.
func (t *topic) pushMessage(msg *message.TopicRequest) {
	t.mu.Lock()
	subs := make([]*topicSubscriber, 0, len(t.subscribers))
	for sub := range t.subscribers {
		subs = append(subs, sub)
	}
	t.mu.Unlock()

	for _, sub := range subs {
		if err := sub.conn.Send(msg); err != nil {
			suplog.S().Errorf("topic %s: delivery to a subscriber failed: %v", t.key, err)
		}
	}
}

// TopicManager serves REQ_TOPIC on the topic server. Topics and
// subscribers are double-indexed under one lock; the per-entity locks
// only guard their own sets.
type TopicManager struct {
	mu          sync.Mutex
	topics      map[string]*topic
	subscribers map[transport.Conn]*topicSubscriber
}

func NewTopicManager() *TopicManager {
	return &TopicManager{
		topics:      make(map[string]*topic),
		subscribers: make(map[transport.Conn]*topicSubscriber),
	}
}

// OnTopicRequest serves one topic operation and answers exactly one
// RSP_TOPIC.
func (m *TopicManager) OnTopicRequest(conn transport.Conn, msg *message.TopicRequest) {
	var code message.RCode
	switch msg.Optype {
	case message.TopicCreate:
		m.topicCreate(msg)
		code = message.RCodeOK
	case message.TopicRemove:
		if m.topicRemove(msg) {
			code = message.RCodeOK
		} else {
			code = message.RCodeNotFoundTopic
		}
	case message.TopicSubscribe:
		if m.topicSubscribe(conn, msg) {
			code = message.RCodeOK
		} else {
			code = message.RCodeNotFoundTopic
		}
	case message.TopicCancel:
		// OK even when the topic never existed; both removals are no-ops.
		m.topicCancel(conn, msg)
		code = message.RCodeOK
	case message.TopicPublish:
		if m.topicPublish(msg) {
			code = message.RCodeOK
		} else {
			code = message.RCodeNotFoundTopic
		}
	default:
		suplog.S().Errorf("topic request rid=%s carries invalid optype %d", msg.RID(), msg.Optype)
		code = message.RCodeInvalidOptype
	}

	rsp := &message.TopicResponse{RCode: code}
	rsp.SetRID(msg.RID())
	if err := conn.Send(rsp); err != nil {
		suplog.S().Errorf("topic response rid=%s failed to send: %v", msg.RID(), err)
	}
}

// OnConnShutdown removes the closed connection's subscriber from every
// topic it held.
func (m *TopicManager) OnConnShutdown(conn transport.Conn) {
	m.mu.Lock()
	sub, ok := m.subscribers[conn]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subscribers, conn)
	affected := make([]*topic, 0)
	for _, key := range sub.topicList() {
		if t, ok := m.topics[key]; ok {
			affected = append(affected, t)
		}
	}
	m.mu.Unlock()

	for _, t := range affected {
		t.removeSubscriber(sub)
	}
}

// topicCreate inserts an empty topic; creating an existing topic is
// idempotent.
func (m *TopicManager) topicCreate(msg *message.TopicRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[msg.TopicKey]; !ok {
		m.topics[msg.TopicKey] = newTopic(msg.TopicKey)
		suplog.S().Infof("topic %s created", msg.TopicKey)
	}
}

func (m *TopicManager) topicRemove(msg *message.TopicRequest) bool {
	m.mu.Lock()
	t, ok := m.topics[msg.TopicKey]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.topics, msg.TopicKey)
	t.mu.Lock()
	subs := make([]*topicSubscriber, 0, len(t.subscribers))
	for sub := range t.subscribers {
		subs = append(subs, sub)
	}
	t.mu.Unlock()
	m.mu.Unlock()

	for _, sub := range subs {
		sub.removeTopic(msg.TopicKey)
	}
	suplog.S().Infof("topic %s removed", msg.TopicKey)
	return true
}

func (m *TopicManager) topicSubscribe(conn transport.Conn, msg *message.TopicRequest) bool {
	m.mu.Lock()
	t, ok := m.topics[msg.TopicKey]
	if !ok {
		m.mu.Unlock()
		return false
	}
	sub, ok := m.subscribers[conn]
	if !ok {
		sub = newTopicSubscriber(conn)
		m.subscribers[conn] = sub
	}
	m.mu.Unlock()

	t.appendSubscriber(sub)
	sub.appendTopic(msg.TopicKey)
	return true
}

func (m *TopicManager) topicCancel(conn transport.Conn, msg *message.TopicRequest) {
	m.mu.Lock()
	t := m.topics[msg.TopicKey]
	sub := m.subscribers[conn]
	m.mu.Unlock()

	if sub != nil {
		sub.removeTopic(msg.TopicKey)
	}
	if t != nil && sub != nil {
		t.removeSubscriber(sub)
	}
}

// topicPublish fans the original request out to every subscriber of the
// topic, publisher included when it subscribed itself.
func (m *TopicManager) topicPublish(msg *message.TopicRequest) bool {
	m.mu.Lock()
	t, ok := m.topics[msg.TopicKey]
	m.mu.Unlock()
	if !ok {
		return false
	}
	t.pushMessage(msg)
	return true
}
