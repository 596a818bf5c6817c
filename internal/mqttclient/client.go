package mqttclient

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by publishes while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt not connected")

// Client publishes pipeline run events:
//
//	<prefix>/runs/<recording_id>   one JSON run record per state change
//	<prefix>/status                "online", or "offline" via the broker's last will
type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	published atomic.Int64
	log       zerolog.Logger
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	c := &Client{
		prefix: normalizePrefix(opts.TopicPrefix),
		log:    opts.Log.With().Str("component", "mqtt").Logger(),
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetWill(c.StatusTopic(), "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.prefix).Msg("mqtt connected")

	token := client.Publish(c.StatusTopic(), 1, true, "online")
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		c.log.Warn().Err(token.Error()).Msg("mqtt status publish failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// RunTopic returns the topic a recording's run events are published on.
func (c *Client) RunTopic(recordingID string) string {
	return c.prefix + "/runs/" + recordingID
}

func (c *Client) StatusTopic() string {
	return c.prefix + "/status"
}

// PublishRunEvent publishes payload at QoS 1 and waits briefly for the
// broker's acknowledgement.
func (c *Client) PublishRunEvent(recordingID string, payload []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	token := c.conn.Publish(c.RunTopic(recordingID), 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("mqtt publish timed out")
	}
	if err := token.Error(); err != nil {
		return err
	}
	c.published.Add(1)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Published returns the number of acknowledged run events.
func (c *Client) Published() int64 {
	return c.published.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	if c.connected.Load() {
		c.conn.Publish(c.StatusTopic(), 1, true, "offline").WaitTimeout(time.Second)
	}
	c.conn.Disconnect(1000)
}

func normalizePrefix(raw string) string {
	p := strings.Trim(strings.TrimSpace(raw), "/")
	if p == "" {
		return "clab"
	}
	return p
}
