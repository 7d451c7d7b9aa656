package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/ws"
)

// HubSink pushes messages to the receiver's live connections on this instance.
type HubSink struct {
	hub *ws.Hub
}

// NewHubSink constructs a HubSink.
func NewHubSink(hub *ws.Hub) HubSink {
	return HubSink{hub: hub}
}

// Notify encodes msg as JSON and hands it to the hub. Offline receivers are not an error.
func (s HubSink) Notify(_ context.Context, msg domain.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	s.hub.SendToUser(msg.ReceiverID, payload)
	return nil
}
