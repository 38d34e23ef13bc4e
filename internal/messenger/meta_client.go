package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

const maxButtons = 3

// MetaClient sends messages through the Meta Graph API.
type MetaClient struct {
	baseURL       string
	phoneNumberID string
	token         string
	httpClient    *http.Client
	logger        *slog.Logger
}

func NewMetaClient(baseURL, phoneNumberID, token string, logger *slog.Logger) *MetaClient {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v18.0"
	}
	return &MetaClient{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		token:         token,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		logger:        logger,
	}
}

type textPayload struct {
	Body string `json:"body"`
}

type interactiveButton struct {
	Type  string        `json:"type"`
	Reply domain.Button `json:"reply"`
}

type interactivePayload struct {
	Type string `json:"type"`
	Body struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []interactiveButton `json:"buttons"`
	} `json:"action"`
}

type imagePayload struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string              `json:"messaging_product"`
	RecipientType    string              `json:"recipient_type,omitempty"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
	Image            *imagePayload       `json:"image,omitempty"`
}

func (c *MetaClient) SendText(ctx context.Context, to, body string) error {
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

func (c *MetaClient) SendButtons(ctx context.Context, to, body string, buttons []domain.Button) error {
	if len(buttons) > maxButtons {
		c.logger.Warn("dropping extra buttons", "to", to, "count", len(buttons))
		buttons = buttons[:maxButtons]
	}
	var interactive interactivePayload
	interactive.Type = "button"
	interactive.Body.Text = body
	for _, b := range buttons {
		interactive.Action.Buttons = append(interactive.Action.Buttons, interactiveButton{
			Type:  "reply",
			Reply: b,
		})
	}
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive:      &interactive,
	})
}

func (c *MetaClient) SendImage(ctx context.Context, to, imageURL, caption string) error {
	return c.post(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "image",
		Image:            &imagePayload{Link: imageURL, Caption: caption},
	})
}

func (c *MetaClient) post(ctx context.Context, msg outboundMessage) error {
	if c.token == "" || c.phoneNumberID == "" {
		return fmt.Errorf("messenger credentials not configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		c.logger.Error("graph api rejected message",
			"status", resp.StatusCode, "to", msg.To, "detail", string(detail))
		return fmt.Errorf("graph api status %d", resp.StatusCode)
	}
	return nil
}
