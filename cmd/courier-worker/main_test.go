package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shaiso/courier/internal/telegram"
)

func TestCheckBot(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"authorized", http.StatusOK, `{"ok":true,"result":{"id":1,"is_bot":true,"username":"courier_bot"}}`, false},
		{"invalid token", http.StatusUnauthorized, `{"ok":false,"error_code":401,"description":"Unauthorized"}`, true},
		{"not found", http.StatusNotFound, `{"ok":false,"error_code":404,"description":"Not Found"}`, true},
		{"server error", http.StatusBadGateway, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, false},
		{"rate limited", http.StatusTooManyRequests, `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			tg, err := telegram.NewClient(telegram.Config{BotToken: "123:abc", APIURL: server.URL}, nil)
			if err != nil {
				t.Fatal(err)
			}

			err = checkBot(context.Background(), tg, slog.New(slog.DiscardHandler))
			if (err != nil) != tt.wantErr {
				t.Errorf("checkBot() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
