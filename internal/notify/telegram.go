package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"etrade-trader/pkg/utils"
)

// TelegramNotifier sends messages via the Telegram Bot API. The user id is
// the Telegram chat id.
type TelegramNotifier struct {
	botToken string
	client   *http.Client
	logger   zerolog.Logger
	retry    utils.RetryConfig
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, proxyURL string, logger zerolog.Logger) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		botToken: botToken,
		client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: logger,
		retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  time.Second,
			MaxDelay:      10 * time.Second,
			BackoffFactor: 2.0,
		},
	}
}

// Send delivers a message to a chat, retrying transient failures with
// backoff.
func (t *TelegramNotifier) Send(ctx context.Context, userID, text string) error {
	return utils.Retry(ctx, t.retry, func() error {
		return t.sendOnce(ctx, userID, text)
	})
}

func (t *TelegramNotifier) sendOnce(ctx context.Context, chatID, text string) error {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.botToken)
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// CommandHandler handles one inbound chat message and returns the reply text,
// or "" for no reply.
type CommandHandler func(ctx context.Context, userID, text string) string

type telegramUpdates struct {
	OK     bool `json:"ok"`
	Result []struct {
		UpdateID int64 `json:"update_id"`
		Message  struct {
			Text string `json:"text"`
			Chat struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
	} `json:"result"`
}

// StartPolling long-polls getUpdates and dispatches each message to handler.
// It blocks until ctx is cancelled.
func (t *TelegramNotifier) StartPolling(ctx context.Context, handler CommandHandler) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn().Err(err).Msg("telegram getUpdates failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, u := range updates.Result {
			offset = u.UpdateID + 1
			if u.Message.Text == "" {
				continue
			}
			userID := strconv.FormatInt(u.Message.Chat.ID, 10)
			reply := handler(ctx, userID, u.Message.Text)
			if reply == "" {
				continue
			}
			if err := t.Send(ctx, userID, reply); err != nil {
				t.logger.Error().Err(err).Str("user_id", userID).Msg("telegram reply failed")
			}
		}
	}
}

func (t *TelegramNotifier) getUpdates(ctx context.Context, offset int64) (*telegramUpdates, error) {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/getUpdates?timeout=25&offset=%d", t.botToken, offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var updates telegramUpdates
	if err := json.Unmarshal(body, &updates); err != nil {
		return nil, err
	}
	return &updates, nil
}
