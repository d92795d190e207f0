package mqtt

import (
	"fmt"
)

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// Publish sends a raw payload to topic.
//
// Parameters:
//   - topic: The topic to publish to
//   - payload: The encoded payload (max 1MB)
//   - qos: 0, 1 or 2
//   - retained: Whether the broker keeps the message for new subscribers.
//     Use for state topics, never for events or acks.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishMessage encodes v with the client's codec and publishes it at the
// configured QoS.
func (c *Client) PublishMessage(topic string, v any, retained bool) error {
	payload, err := c.codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, c.codec.Format(), err)
	}
	return c.Publish(topic, payload, byte(c.cfg.QoS), retained)
}
