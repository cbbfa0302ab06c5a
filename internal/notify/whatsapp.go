package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"subwatch/internal/models"
	"subwatch/shared/reminders"
)

const defaultWhatsAppBaseURL = "https://graph.facebook.com"

// WhatsAppConfig configures the WhatsApp Business Cloud API client.
type WhatsAppConfig struct {
	BaseURL       string
	APIVersion    string
	PhoneNumberID string
	AccessToken   string
}

// WhatsAppChannel delivers text messages through the Cloud API.
type WhatsAppChannel struct {
	baseURL       string
	apiVersion    string
	phoneNumberID string
	accessToken   string
	client        *http.Client
}

func NewWhatsAppChannel(cfg WhatsAppConfig) (*WhatsAppChannel, error) {
	if cfg.PhoneNumberID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp: phone number id and access token are required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultWhatsAppBaseURL
	}
	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "v20.0"
	}
	return &WhatsAppChannel{
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiVersion:    apiVersion,
		phoneNumberID: cfg.PhoneNumberID,
		accessToken:   cfg.AccessToken,
		client:        &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *WhatsAppChannel) Name() models.Channel { return models.ChannelWhatsApp }

type whatsAppMessage struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Text             struct {
		Body string `json:"body"`
	} `json:"text"`
}

func (c *WhatsAppChannel) Send(ctx context.Context, rcpt Recipient, msg *Message) error {
	if rcpt.Settings.WhatsAppNumber == "" {
		return &reminders.SendError{Code: 400, Message: "whatsapp number not set"}
	}

	payload := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               rcpt.Settings.WhatsAppNumber,
		Type:             "text",
	}
	payload.Text.Body = msg.Title + "\n" + msg.Text

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &reminders.SendError{Code: resp.StatusCode, Message: strings.TrimSpace(string(detail))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// TestConnection fetches the phone number resource, which fails on a bad
// token or wrong id.
func (c *WhatsAppChannel) TestConnection(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s/%s", c.baseURL, c.apiVersion, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("whatsapp: credentials rejected (status %d)", resp.StatusCode)
	}
	return nil
}
