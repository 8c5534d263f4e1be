package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]any)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), "[Cross-Chain Flow Briefing | 2024-01-15]"); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] == "" {
		t.Fatalf("text 应非空")
	}
	if received["parse_mode"] != "HTML" {
		t.Fatalf("parse_mode 应为 HTML: %#v", received)
	}
	if received["disable_web_page_preview"] != true {
		t.Fatalf("应禁用链接预览: %#v", received)
	}
}

func TestTelegramNotifierTruncatesLongText(t *testing.T) {
	var sentText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		sentText, _ = body["text"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	long := strings.Repeat("a", MaxMessageLen+500)
	if err := notifier.Notify(context.Background(), long); err != nil {
		t.Fatalf("Notify 应成功: %v", err)
	}
	if len(sentText) != MaxMessageLen {
		t.Fatalf("文本应被截断到 %d 字节, 实际 %d", MaxMessageLen, len(sentText))
	}
}

func TestTruncateKeepsRuneBoundary(t *testing.T) {
	long := strings.Repeat("异常显著", 400)

	for _, max := range []int{10, 11, 12, MaxMessageLen} {
		got := Truncate(long, max)
		if len(got) > max {
			t.Fatalf("截断后长度 %d 超过上限 %d", len(got), max)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("截断结果不是合法 UTF-8 (max=%d): %q", max, got)
		}
	}

	if got := Truncate("short", 100); got != "short" {
		t.Fatalf("短文本不应被截断, 实际 %q", got)
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())

	if err := notifier.Notify(context.Background(), "text"); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
