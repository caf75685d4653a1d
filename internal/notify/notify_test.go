package notify

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSlackNotifierSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	notifier := NewSlackNotifier(server.URL)
	err := notifier.Send(Notification{
		Title:   "Daily check-in run finished",
		Message: "3 accounts: 2 success, 1 failed",
		Type:    NotifyWarning,
		Account: "main",
	})
	if err != nil {
		t.Errorf("Send failed: %v", err)
	}
}

func TestSlackNotifierDisabledByEmptyURL(t *testing.T) {
	notifier := NewSlackNotifier("")
	if err := notifier.Send(Notification{Title: "x"}); err != nil {
		t.Errorf("disabled notifier errored: %v", err)
	}
}

func TestNotificationTypeColors(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}

	for _, tt := range tests {
		if got := SlackColor(tt.typ); got != tt.want {
			t.Errorf("SlackColor(%v) = %s, want %s", tt.typ, got, tt.want)
		}
	}
}

func TestMultiNotifier(t *testing.T) {
	var called []string

	mock1 := &mockNotifier{name: "slack", calls: &called}
	mock2 := &mockNotifier{name: "desktop", calls: &called}

	multi := NewMultiNotifier(mock1, mock2)
	multi.Send(Notification{Title: "run finished"})

	if len(called) != 2 {
		t.Errorf("calls = %d, want 2", len(called))
	}
}

func TestFromSettings(t *testing.T) {
	if _, ok := FromSettings(Settings{}).(NoopNotifier); !ok {
		t.Error("empty settings should yield NoopNotifier")
	}
	if _, ok := FromSettings(Settings{SlackWebhook: "https://hooks.example.com/x"}).(*MultiNotifier); !ok {
		t.Error("slack webhook should yield a MultiNotifier")
	}
}

type mockNotifier struct {
	name  string
	calls *[]string
}

func (m *mockNotifier) Send(n Notification) error {
	*m.calls = append(*m.calls, m.name)
	return nil
}
