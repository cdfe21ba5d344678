package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultAPI = "https://api.telegram.org"

// maxMessage keeps batched messages under Telegram's 4096 character limit.
const maxMessage = 4000

type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	limiter  *rate.Limiter
}

func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPI,
		client:   &http.Client{Timeout: 10 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(time.Second/30), 1), // 30 messages per second
	}
}

// SendMessage sends a text message to the configured chat
func (n *Notifier) SendMessage(ctx context.Context, text string) error {
	// Wait for rate limiter
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)

	jsonBody, err := json.Marshal(map[string]string{
		"chat_id": n.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("telegram API error: %s - %s", resp.Status, string(body))
	}

	return nil
}

// SendProxiesFromFile sends the non-empty lines of filePath, packing as
// many descriptors per message as fit.
func (n *Notifier) SendProxiesFromFile(ctx context.Context, filePath string) (int, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return 0, fmt.Errorf("error reading file: %w", err)
	}

	sent := 0
	var batch strings.Builder
	flush := func() error {
		if batch.Len() == 0 {
			return nil
		}
		if err := n.SendMessage(ctx, batch.String()); err != nil {
			return err
		}
		sent++
		batch.Reset()
		return nil
	}

	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if batch.Len() > 0 && batch.Len()+len(line)+1 > maxMessage {
			if err := flush(); err != nil {
				return sent, err
			}
		}
		if batch.Len() > 0 {
			batch.WriteByte('\n')
		}
		batch.WriteString(line)
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}
