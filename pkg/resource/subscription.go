package resource

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a Subscription resource.
type Status string

const (
	StatusRequested Status = "requested"
	StatusActive    Status = "active"
	StatusError     Status = "error"
	StatusOff       Status = "off"
)

// ErrNotSubscription is returned when decoding a non-Subscription resource.
var ErrNotSubscription = errors.New("resource is not a Subscription")

// Channel describes how notifications for a subscription are delivered.
type Channel struct {
	// Type is the declared channel type, e.g. "websocket".
	Type string

	// Endpoint is the channel endpoint metadata, if any.
	Endpoint string

	// Payload is the requested payload format.
	Payload PayloadFormat

	// Headers are additional channel headers.
	Headers []string
}

// Subscription is the decoded form of a Subscription resource.
type Subscription struct {
	// ID is the logical id, possibly with a version suffix.
	ID string

	// Criteria is "<ResourceType>?<query>".
	Criteria string

	Status  Status
	Reason  string
	Channel Channel
}

// IDPart returns the logical id without any type prefix or version.
func (s *Subscription) IDPart() string {
	return IDPart(s.ID)
}

// Active reports whether the subscription participates in matching.
func (s *Subscription) Active() bool {
	return s.Status == StatusActive
}

// SubscriptionFromResource decodes a Subscription resource.
func SubscriptionFromResource(r *Resource) (*Subscription, error) {
	if r == nil || r.Kind != KindSubscription {
		return nil, ErrNotSubscription
	}
	sub := &Subscription{
		ID:       r.ID,
		Criteria: stringAt(r, "criteria"),
		Status:   Status(stringAt(r, "status")),
		Reason:   stringAt(r, "reason"),
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("subscription: missing id")
	}
	sub.Channel = Channel{
		Type:     stringAt(r, "channel.type"),
		Endpoint: stringAt(r, "channel.endpoint"),
		Payload:  ParsePayloadFormat(stringAt(r, "channel.payload")),
	}
	for _, h := range r.Values("channel.header") {
		if s, ok := h.(string); ok {
			sub.Channel.Headers = append(sub.Channel.Headers, s)
		}
	}
	return sub, nil
}

// Resource encodes the subscription back into a Subscription resource.
func (s *Subscription) Resource() *Resource {
	channel := map[string]any{}
	if s.Channel.Type != "" {
		channel["type"] = s.Channel.Type
	}
	if s.Channel.Endpoint != "" {
		channel["endpoint"] = s.Channel.Endpoint
	}
	if mime := s.Channel.Payload.MIME(); mime != "" {
		channel["payload"] = mime
	}
	if len(s.Channel.Headers) > 0 {
		headers := make([]any, len(s.Channel.Headers))
		for i, h := range s.Channel.Headers {
			headers[i] = h
		}
		channel["header"] = headers
	}

	fields := map[string]any{
		"criteria": s.Criteria,
		"status":   string(s.Status),
		"channel":  channel,
	}
	if s.Reason != "" {
		fields["reason"] = s.Reason
	}
	return New(KindSubscription, s.IDPart(), fields)
}

func stringAt(r *Resource, path string) string {
	for _, v := range r.Values(path) {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
