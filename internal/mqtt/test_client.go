package mqtt

import (
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// TestPahoClient is an in-memory paho client recording published messages.
type TestPahoClient struct {
	mu         sync.Mutex
	connected  bool
	ConnectErr error
	PublishErr error
	published  []PublishedMessage
	onPublish  chan PublishedMessage
}

type PublishedMessage struct {
	Topic   string
	Payload string
	Retain  bool
}

func NewTestPahoClient() *TestPahoClient {
	return &TestPahoClient{
		onPublish: make(chan PublishedMessage, 1024),
	}
}

// Published returns a channel receiving every published message.
func (c *TestPahoClient) Published() <-chan PublishedMessage {
	return c.onPublish
}

func (c *TestPahoClient) Messages() []PublishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PublishedMessage, len(c.published))
	copy(out, c.published)
	return out
}

func (c *TestPahoClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *TestPahoClient) IsConnectionOpen() bool {
	return c.IsConnected()
}

func (c *TestPahoClient) Connect() mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = c.ConnectErr == nil
	return doneToken{err: c.ConnectErr}
}

func (c *TestPahoClient) Disconnect(quiesce uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *TestPahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	msg := PublishedMessage{Topic: topic, Payload: body, Retain: retained}

	c.mu.Lock()
	c.published = append(c.published, msg)
	err := c.PublishErr
	c.mu.Unlock()

	select {
	case c.onPublish <- msg:
	default:
	}
	return doneToken{err: err}
}

func (c *TestPahoClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}

func (c *TestPahoClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}

func (c *TestPahoClient) Unsubscribe(topics ...string) mqtt.Token {
	return doneToken{}
}

func (c *TestPahoClient) AddRoute(topic string, callback mqtt.MessageHandler) {
}

func (c *TestPahoClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

type doneToken struct {
	err error
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}          { return closedChan }
func (t doneToken) Error() error                   { return t.err }

// ensure interface compliance
var (
	_ mqtt.Client = (*TestPahoClient)(nil)
	_ mqtt.Token  = doneToken{}
)
