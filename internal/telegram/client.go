// Package telegram — клиент Telegram Bot API для доставки уведомлений.
//
// Получатель задаётся числовым chat_id или @username. Username
// разрешается через getChat, а если бот не может его найти —
// перебором getUpdates (пользователь должен был написать боту).
// Найденные chat_id кэшируются на время жизни процесса.
//
// Ошибки API классифицируются:
//   - 429 → RateLimitError (retry_after)
//   - 5xx, сеть, таймаут → RetryableError
//   - 400/401/403/404 и прочие 4xx → PermanentError
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultAPIURL  = "https://api.telegram.org"
	defaultTimeout = 10 * time.Second

	// maxErrorBody — сколько байт тела ответа сохраняем в ошибке.
	maxErrorBody = 512
)

// Config — конфигурация клиента.
type Config struct {
	BotToken  string
	APIURL    string        // default: https://api.telegram.org
	Timeout   time.Duration // таймаут одного HTTP-запроса
	ParseMode string        // "", "HTML" или "MarkdownV2"
}

// Client — клиент Bot API. Безопасен для конкурентного использования.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger

	// username (lowercase, без @) → chat_id
	chats sync.Map
}

// NewClient создаёт клиента. Без токена возвращает ошибку.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BotToken == "" {
		return nil, errors.New("telegram client: bot token is required")
	}
	if cfg.APIURL == "" {
		cfg.APIURL = defaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// User — ответ getMe.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

type chat struct {
	ID int64 `json:"id"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			Username string `json:"username"`
		} `json:"from"`
		Chat chat `json:"chat"`
	} `json:"message"`
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// GetMe проверяет токен. 401 возвращается как PermanentError.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// Send отправляет текст получателю.
func (c *Client) Send(ctx context.Context, recipient, content string) error {
	chatID, err := c.resolveChat(ctx, recipient)
	if err != nil {
		return err
	}

	req := sendMessageRequest{
		ChatID:    chatID,
		Text:      content,
		ParseMode: c.config.ParseMode,
	}
	if err := c.call(ctx, "sendMessage", req, nil); err != nil {
		return err
	}

	c.logger.Debug("telegram message sent", "chat_id", chatID)
	return nil
}

// resolveChat превращает получателя в chat_id.
func (c *Client) resolveChat(ctx context.Context, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", &PermanentError{Message: "empty recipient"}
	}
	if _, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		return recipient, nil
	}

	username := strings.ToLower(strings.TrimPrefix(recipient, "@"))
	if cached, ok := c.chats.Load(username); ok {
		return cached.(string), nil
	}

	var ch chat
	err := c.call(ctx, "getChat", map[string]string{"chat_id": "@" + username}, &ch)
	if err == nil {
		return c.remember(username, ch.ID), nil
	}

	var perm *PermanentError
	if !errors.As(err, &perm) {
		return "", err
	}

	c.logger.Debug("getChat failed, scanning updates", "username", username, "error", err)

	var updates []update
	if err := c.call(ctx, "getUpdates", nil, &updates); err != nil {
		return "", err
	}
	for _, u := range updates {
		if u.Message == nil || u.Message.From == nil {
			continue
		}
		if strings.EqualFold(u.Message.From.Username, username) {
			return c.remember(username, u.Message.Chat.ID), nil
		}
	}

	return "", &PermanentError{Code: http.StatusNotFound, Message: "chat not found for @" + username}
}

func (c *Client) remember(username string, id int64) string {
	chatID := strconv.FormatInt(id, 10)
	c.chats.Store(username, chatID)
	return chatID
}

// call выполняет метод Bot API и разбирает ответ в result.
func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(b)
	}

	url := c.config.APIURL + "/bot" + c.config.BotToken + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", method, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}
		// url.Error содержит токен в URL — не пробрасываем его в сообщение
		return &RetryableError{Message: method + ": request failed: " + redact(err.Error(), c.config.BotToken)}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RetryableError{Code: resp.StatusCode, Message: method + ": read response: " + err.Error()}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return &PermanentError{Code: resp.StatusCode, Message: truncate(string(raw), maxErrorBody)}
		}
		return &RetryableError{Code: resp.StatusCode, Message: method + ": invalid response: " + truncate(string(raw), maxErrorBody)}
	}

	if resp.StatusCode == http.StatusOK && apiResp.OK {
		if result != nil && len(apiResp.Result) > 0 {
			if err := json.Unmarshal(apiResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	}

	return classify(resp.StatusCode, &apiResp)
}

func classify(status int, resp *apiResponse) error {
	code := resp.ErrorCode
	if code == 0 {
		code = status
	}

	switch {
	case code == http.StatusTooManyRequests:
		var after time.Duration
		if resp.Parameters != nil {
			after = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return &RateLimitError{RetryAfter: after, Message: resp.Description}

	case code == http.StatusUnauthorized:
		return &PermanentError{Code: code, Message: "invalid bot token"}

	case code >= 500:
		return &RetryableError{Code: code, Message: resp.Description}

	case code >= 400:
		return &PermanentError{Code: code, Message: resp.Description}

	default:
		return &RetryableError{Code: code, Message: "unexpected response: " + resp.Description}
	}
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "<token>")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
