package engine

import (
	"encoding/json"
	"fmt"

	"github.com/ShreyashF130/copit-backend/internal/domain"
)

// metaEnvelope is the Cloud API webhook shape. Only the first message of
// the first change is acted on; status-only deliveries carry no messages.
type metaEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []metaMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type metaMessage struct {
	From string `json:"from"`
	Type string `json:"type"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		NFMReply *struct {
			ResponseJSON string `json:"response_json"`
		} `json:"nfm_reply"`
	} `json:"interactive"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
}

// Classify normalizes a raw webhook body into an inbound event. A nil
// event with nil error means the delivery carried nothing actionable
// (status updates, unsupported message types) and should be acknowledged
// without further processing.
func Classify(body []byte) (*domain.Event, error) {
	var env metaEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse webhook envelope: %w", err)
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return nil, nil
	}
	msgs := env.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return nil, nil
	}
	msg := msgs[0]
	if msg.From == "" {
		return nil, nil
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return nil, nil
		}
		return &domain.Event{Kind: domain.EventText, Shopper: msg.From, Text: msg.Text.Body}, nil

	case "interactive":
		if msg.Interactive == nil {
			return nil, nil
		}
		if msg.Interactive.ButtonReply != nil {
			return &domain.Event{
				Kind:    domain.EventButton,
				Shopper: msg.From,
				Button: domain.ButtonReply{
					ID:    msg.Interactive.ButtonReply.ID,
					Title: msg.Interactive.ButtonReply.Title,
				},
			}, nil
		}
		if msg.Interactive.NFMReply != nil {
			form := map[string]string{}
			var raw map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Interactive.NFMReply.ResponseJSON), &raw); err != nil {
				return nil, fmt.Errorf("parse form reply: %w", err)
			}
			for k, v := range raw {
				if s, ok := v.(string); ok {
					form[k] = s
				}
			}
			return &domain.Event{Kind: domain.EventForm, Shopper: msg.From, Form: form}, nil
		}
		return nil, nil

	case "image":
		if msg.Image == nil {
			return nil, nil
		}
		return &domain.Event{
			Kind:    domain.EventImage,
			Shopper: msg.From,
			Image:   domain.ImageRef{ProviderID: msg.Image.ID, Caption: msg.Image.Caption},
		}, nil
	}
	return nil, nil
}
