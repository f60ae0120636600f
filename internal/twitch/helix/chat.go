package helix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

const chatMessagesPath = "/chat/messages"

type chatMessageRequest struct {
	BroadcasterID string `json:"broadcaster_id"`
	SenderID      string `json:"sender_id"`
	Message       string `json:"message"`
}

type chatMessageResponse struct {
	Data []struct {
		MessageID  string `json:"message_id"`
		IsSent     bool   `json:"is_sent"`
		DropReason *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"drop_reason"`
	} `json:"data"`
}

// ChatSender posts messages to one channel's chat as the bot user.
type ChatSender struct {
	client        *Client
	broadcasterID string
	senderID      string
}

// NewChatSender creates a sender for broadcasterID's chat.
func NewChatSender(client *Client, broadcasterID, senderID string) (*ChatSender, error) {
	if client == nil {
		return nil, errors.New("helix: client is required")
	}
	if broadcasterID == "" || senderID == "" {
		return nil, errors.New("helix: broadcaster and sender ids are required")
	}
	return &ChatSender{client: client, broadcasterID: broadcasterID, senderID: senderID}, nil
}

// SendChatMessage posts message. A message Twitch accepts but drops (for
// example by AutoMod) returns ErrMessageNotSent.
func (s *ChatSender) SendChatMessage(ctx context.Context, message string) error {
	status, data, err := s.client.postJSON(ctx, chatMessagesPath, chatMessageRequest{
		BroadcasterID: s.broadcasterID,
		SenderID:      s.senderID,
		Message:       message,
	})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return apiError(status, data)
	}

	var resp chatMessageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("helix: decoding chat response: %w", err)
	}
	if len(resp.Data) == 0 {
		return ErrMessageNotSent
	}
	if !resp.Data[0].IsSent {
		if dr := resp.Data[0].DropReason; dr != nil {
			s.client.logWarn("chat message dropped", "code", dr.Code, "reason", dr.Message)
			return fmt.Errorf("%w: %s", ErrMessageNotSent, dr.Code)
		}
		return ErrMessageNotSent
	}
	s.client.logInfo("chat message sent", "message_id", resp.Data[0].MessageID)
	return nil
}
