package mqtt

import "fmt"

// Subscribe registers a handler for messages on topic (wildcards allowed).
//
// The subscription is remembered and replayed after reconnects. A
// subscription the broker rejects is forgotten again.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrNotConnected, or a wrapped ErrSubscribeFailed
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := checkRequest(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.trackSubscription(subscription{topic: topic, qos: qos, handler: handler})

	err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed, defaultPublishTimeout)
	if err != nil {
		c.forgetSubscription(topic)
	}
	return err
}

// Unsubscribe removes a subscription made with Subscribe.
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forgetSubscription(topic)
	return await(c.client.Unsubscribe(topic), ErrUnsubscribeFailed, defaultPublishTimeout)
}

// SubscriptionCount returns the number of tracked subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

func (c *Client) trackSubscription(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) forgetSubscription(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
