package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"assetsync/internal/config"
)

const userAgent = "assetsync/0.1.0"

// Event identifies a run milestone.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventNewEntities  Event = "new_entities"
	EventRunCompleted Event = "run_completed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event values. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventRunStarted:
		return message{
			title: "assetsync - Run Started",
			body:  fmt.Sprintf("Syncing %s index (%d targets)", payload.text("indexType"), payload.number("targets")),
			tags:  []string{"assetsync", "run", "started"},
		}, true
	case EventNewEntities:
		count := payload.number("count")
		if count == 0 {
			return message{}, false
		}
		body := fmt.Sprintf("🆕 %d new %s entries", count, payload.text("indexType"))
		if ids := payload.text("ids"); ids != "" {
			body += "\n" + ids
		}
		return message{
			title: "assetsync - New Entries",
			body:  body,
			tags:  []string{"assetsync", "diff", "added"},
		}, true
	case EventRunCompleted:
		done := payload.number("done")
		failed := payload.number("failed")
		duration := payload.duration("duration")
		bytes := humanize.Bytes(uint64(max(payload.number("bytes"), 0)))
		if failed == 0 {
			return message{
				title: "assetsync - Run Complete",
				body:  fmt.Sprintf("✅ %d targets placed, %s downloaded in %s", done, bytes, duration),
				tags:  []string{"assetsync", "run", "completed"},
			}, true
		}
		return message{
			title:    "assetsync - Run Complete (with errors)",
			body:     fmt.Sprintf("%d succeeded, %d failed, %s downloaded in %s", done, failed, bytes, duration),
			tags:     []string{"assetsync", "run", "failed"},
			priority: "high",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			builder.WriteString(" during ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		if text := payload.text("error"); text != "" {
			builder.WriteString(text)
		} else {
			builder.WriteString("unknown")
		}
		return message{
			title:    "assetsync - Error",
			body:     builder.String(),
			tags:     []string{"assetsync", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "assetsync - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"assetsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []string:
		return strings.Join(v, ", ")
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) number(key string) int64 {
	switch v := p[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func (p Payload) duration(key string) string {
	d, _ := p[key].(time.Duration)
	d = d.Round(time.Second)
	if d <= 0 {
		return "0s"
	}
	return d.String()
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
