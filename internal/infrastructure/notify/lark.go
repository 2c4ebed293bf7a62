package notify

import (
	"context"
	"encoding/json"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkIm "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// LarkConfig holds Lark bot configuration
type LarkConfig struct {
	AppID     string
	AppSecret string
	ChatID    string
}

// messageCreator is the slice of the Lark IM API the notifier uses
type messageCreator interface {
	Create(ctx context.Context, req *larkIm.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkIm.CreateMessageResp, error)
}

// LarkNotifier posts a text message to a Lark group chat for every transition
type LarkNotifier struct {
	messages messageCreator
	chatID   string
	logger   *zap.Logger
}

// NewLarkNotifier creates a notifier using the Lark open platform SDK
func NewLarkNotifier(cfg LarkConfig, logger *zap.Logger) (*LarkNotifier, error) {
	if cfg.AppID == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("lark app_id and app_secret are required")
	}
	if cfg.ChatID == "" {
		return nil, fmt.Errorf("lark chat_id is required")
	}

	client := lark.NewClient(cfg.AppID, cfg.AppSecret,
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	)
	return newLarkNotifier(client.Im.Message, cfg.ChatID, logger), nil
}

func newLarkNotifier(messages messageCreator, chatID string, logger *zap.Logger) *LarkNotifier {
	return &LarkNotifier{
		messages: messages,
		chatID:   chatID,
		logger:   logger,
	}
}

// Name identifies the sink
func (n *LarkNotifier) Name() string { return "lark" }

// Notify sends the event summary to the configured chat
func (n *LarkNotifier) Notify(ctx context.Context, evt *event.Event) error {
	body, err := textMessage(n.chatID, evt)
	if err != nil {
		return err
	}

	req := larkIm.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(body).
		Build()

	resp, err := n.messages.Create(ctx, req)
	if err != nil {
		n.logger.Error("Failed to send message",
			zap.String("chat_id", n.chatID),
			zap.String("expense_id", evt.ExpenseID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		n.logger.Error("API returned failure",
			zap.String("chat_id", n.chatID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	n.logger.Info("Message sent successfully",
		zap.String("chat_id", n.chatID),
		zap.String("expense_id", evt.ExpenseID),
		zap.String("event_type", evt.Type.String()))
	return nil
}

// textMessage renders the event summary as a text message body; the event ID
// doubles as the Lark dedup uuid
func textMessage(chatID string, evt *event.Event) (*larkIm.CreateMessageReqBody, error) {
	content, err := json.Marshal(map[string]string{"text": evt.Summary()})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return larkIm.NewCreateMessageReqBodyBuilder().
		ReceiveId(chatID).
		MsgType("text").
		Content(string(content)).
		Uuid(evt.ID).
		Build(), nil
}
