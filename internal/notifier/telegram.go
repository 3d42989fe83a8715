package notifier

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/amirphl/simple-backtest/internal/utils"
)

const telegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	Token   string
	ChatID  string
	APIURL  string
	Retries int
	Delay   time.Duration
	client  *http.Client
}

func NewTelegramNotifier(token, chatID string, retries int, delay time.Duration) *TelegramNotifier {
	if retries <= 0 {
		retries = 1
	}
	return &TelegramNotifier{
		Token:   token,
		ChatID:  chatID,
		APIURL:  telegramAPI,
		Retries: retries,
		Delay:   delay,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Send(message string) error {
	apiURL := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.APIURL, "/"), t.Token)
	resp, err := t.client.PostForm(apiURL, url.Values{
		"chat_id": {t.ChatID},
		"text":    {message},
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram send failed: %s", resp.Status)
	}
	return nil
}

func (t *TelegramNotifier) SendWithRetry(message string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = t.Send(message); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | Telegram attempt %d/%d failed: %v", attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay)
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", t.Retries, err)
}

// RetryWithNotification retries action and reports the final failure to the chat.
func (t *TelegramNotifier) RetryWithNotification(action func() error, description string) error {
	var err error
	for attempt := 1; attempt <= t.Retries; attempt++ {
		if err = action(); err == nil {
			return nil
		}
		utils.GetLogger().Printf("Notifier | %s attempt %d/%d failed: %v", description, attempt, t.Retries, err)
		if attempt < t.Retries {
			time.Sleep(t.Delay)
		}
	}
	if sendErr := t.Send(fmt.Sprintf("%s failed after %d attempts: %v", description, t.Retries, err)); sendErr != nil {
		utils.GetLogger().Printf("Notifier | Failed to report %s: %v", description, sendErr)
	}
	return err
}
