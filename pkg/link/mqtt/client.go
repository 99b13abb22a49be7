// Package mqtt bridges a link to an MQTT broker.
//
// Topics are relative to the prefix in the broker URL, and scoped by node ID:
//
//	<node>/report  completion of each request
//	<node>/state   transmit state changes
//	<node>/status  periodic link status
//	<node>/tx      frames handed to the transport, with -v=2
//	<node>/send    requests to submit to the link
//
// Messages are protobuf encoded google.protobuf.Struct.
package mqtt

import (
	"net/url"
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Handler is the callback when a message is received.
type Handler func(topic string, payload []byte)

// Publisher publishes messages, usually a *Client.
type Publisher interface {
	Pub(topic string, payload []byte) paho.Token
}

// Subscriber subscribes topics, usually a *Client.
type Subscriber interface {
	Sub(topic string, handler Handler) *Subscription
}

// Client wraps a MQTT client with a topic prefix.
type Client struct {
	Client      paho.Client
	TopicPrefix string

	subs map[string][]*Subscription
	lock sync.RWMutex
}

// Subscription is a subscribed topic.
type Subscription struct {
	Token paho.Token

	client  *Client
	topic   string
	handler Handler
}

// MatchTopic matches topic with a pattern which may contain + and #.
func MatchTopic(topic, pattern string) bool {
	tokensT, tokensP := strings.Split(topic, "/"), strings.Split(pattern, "/")
	for i, token := range tokensP {
		if token == "#" && i+1 == len(tokensP) {
			return true
		}
		if i >= len(tokensT) {
			return false
		}
		if token != "+" && token != tokensT[i] {
			return false
		}
	}
	return len(tokensP) == len(tokensT)
}

// ClientOptionsFromURL creates ClientOptions from URL.
// The path of the URL is the topic prefix.
func ClientOptionsFromURL(brokerURL, clientID string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, "", err
	}
	scheme := u.Scheme
	if scheme == "" || scheme == "mqtt" {
		scheme = "tcp"
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(scheme + "://" + u.Host).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}
	if id := u.Query().Get("client-id"); id != "" {
		clientID = id
	}
	if clientID != "" {
		opts.SetClientID(clientID)
	}
	return opts, strings.TrimPrefix(u.Path, "/"), nil
}

// NewClient creates a Client.
func NewClient(options *paho.ClientOptions, topicPrefix string) *Client {
	c := &Client{TopicPrefix: topicPrefix, subs: make(map[string][]*Subscription)}
	options.SetOnConnectHandler(c.onConnect)
	options.SetConnectionLostHandler(c.onConnectionLost)
	c.Client = paho.NewClient(options)
	return c
}

// NewClientFromURL creates a Client from URL.
func NewClientFromURL(brokerURL, clientID string) (*Client, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL, clientID)
	if err != nil {
		return nil, err
	}
	return NewClient(opts, topicPrefix), nil
}

// Connect connects to the broker and waits for the result.
func (c *Client) Connect() error {
	token := c.Client.Connect()
	token.Wait()
	return token.Error()
}

// Close implements io.Closer.
func (c *Client) Close() error {
	c.Client.Disconnect(250)
	return nil
}

// Sub subscribes a topic.
func (c *Client) Sub(topic string, handler Handler) *Subscription {
	sub := &Subscription{client: c, topic: topic, handler: handler}
	c.lock.Lock()
	subs := c.subs[topic]
	c.subs[topic] = append(subs, sub)
	c.lock.Unlock()

	if len(subs) == 0 {
		glog.V(2).Infof("SUB %q", c.TopicPrefix+topic)
		sub.Token = c.Client.Subscribe(c.TopicPrefix+topic, 0, c.dispatch)
	} else {
		sub.Token = &paho.DummyToken{}
	}
	return sub
}

// Pub publishes to a topic.
func (c *Client) Pub(topic string, payload []byte) paho.Token {
	return c.Client.Publish(c.TopicPrefix+topic, 0, false, payload)
}

// PubRetained publishes a retained message.
func (c *Client) PubRetained(topic string, payload []byte) paho.Token {
	return c.Client.Publish(c.TopicPrefix+topic, 1, true, payload)
}

func (c *Client) onConnect(paho.Client) {
	glog.Info("MQTT connected")
	filters := make(map[string]byte)
	c.lock.RLock()
	for topic := range c.subs {
		filters[c.TopicPrefix+topic] = 0
	}
	c.lock.RUnlock()
	if len(filters) > 0 {
		c.Client.SubscribeMultiple(filters, c.dispatch)
	}
}

func (c *Client) onConnectionLost(_ paho.Client, err error) {
	glog.Warningf("MQTT connection lost: %v", err)
}

func (c *Client) handlers(topic string) []Handler {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var handlers []Handler
	for pattern, subs := range c.subs {
		if !MatchTopic(topic, pattern) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	return handlers
}

func (c *Client) dispatch(_ paho.Client, msg paho.Message) {
	topic := msg.Topic()
	if !strings.HasPrefix(topic, c.TopicPrefix) {
		return
	}
	topic = topic[len(c.TopicPrefix):]
	glog.V(2).Infof("RCV %q", topic)
	payload := msg.Payload()
	for _, h := range c.handlers(topic) {
		h(topic, payload)
	}
}

// Close unsubscribes the handler.
func (s *Subscription) Close() error {
	c := s.client
	c.lock.Lock()
	subs := c.subs[s.topic]
	for n, sub := range subs {
		if sub == s {
			subs = append(subs[:n], subs[n+1:]...)
			break
		}
	}
	unsub := len(subs) == 0
	if unsub {
		delete(c.subs, s.topic)
	} else {
		c.subs[s.topic] = subs
	}
	c.lock.Unlock()
	if !unsub {
		return nil
	}
	glog.V(2).Infof("UNSUB %q", s.topic)
	token := c.Client.Unsubscribe(c.TopicPrefix + s.topic)
	token.Wait()
	return token.Error()
}
