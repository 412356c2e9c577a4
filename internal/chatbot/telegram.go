package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var ErrTelegramAPI = errors.New("telegram api error")

// TelegramClient sends messages through the Telegram Bot API.
type TelegramClient struct {
	baseURL string
	http    *http.Client
}

func NewTelegramClient(apiURL, token string, client *http.Client) *TelegramClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramClient{
		baseURL: strings.TrimRight(apiURL, "/") + "/bot" + token,
		http:    client,
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type answerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func (c *TelegramClient) Send(ctx context.Context, chatID int64, msg OutMessage) error {
	req := sendMessageRequest{ChatID: chatID, Text: msg.Text}
	if len(msg.Buttons) > 0 {
		markup := &replyMarkup{}
		for _, row := range msg.Buttons {
			out := make([]inlineButton, 0, len(row))
			for _, b := range row {
				out = append(out, inlineButton{Text: b.Text, CallbackData: b.Data})
			}
			markup.InlineKeyboard = append(markup.InlineKeyboard, out)
		}
		req.ReplyMarkup = markup
	}
	return c.call(ctx, "sendMessage", req)
}

func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", answerCallbackRequest{CallbackQueryID: callbackID})
}

func (c *TelegramClient) call(ctx context.Context, method string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode %s response (status %d): %w", method, resp.StatusCode, err)
	}
	if !out.OK {
		return fmt.Errorf("%w: %s: %d %s", ErrTelegramAPI, method, out.ErrorCode, out.Description)
	}
	return nil
}
