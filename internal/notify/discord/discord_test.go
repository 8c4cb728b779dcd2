package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/soundcheck/internal/notify"
)

type mockSession struct {
	sent []*discordgo.MessageSend
	errs []error
}

func (m *mockSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	m.sent = append(m.sent, data)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"#36a64f", 0x36a64f},
		{"E53935", 0xe53935},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseHexColor(tt.in); got != tt.want {
			t.Errorf("parseHexColor(%q) = %x, want %x", tt.in, got, tt.want)
		}
	}
}

func TestDeliver_SendsEmbed(t *testing.T) {
	m := &mockSession{}
	s, err := New(Opts{Channel: "chan", Session: m})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ev := notify.Event{Kind: notify.ReviewMilestone, TrackID: "t1", TrackTitle: "Demo", Completed: 5, Requested: 5}
	if err := s.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(m.sent) != 1 || len(m.sent[0].Embeds) != 1 {
		t.Fatalf("sent = %+v, want one embed", m.sent)
	}
	embed := m.sent[0].Embeds[0]
	if !strings.Contains(embed.Title, "All reviews are in") {
		t.Errorf("title = %q", embed.Title)
	}
	if embed.Color != 0x36a64f {
		t.Errorf("color = %x, want success green", embed.Color)
	}
}

func TestDeliver_RetriesOn429(t *testing.T) {
	limited := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	m := &mockSession{errs: []error{limited}}
	s, _ := New(Opts{Channel: "chan", Session: m})
	s.baseBackoff = time.Millisecond

	if err := s.Deliver(context.Background(), notify.Event{Kind: notify.TrackQueued, TrackID: "t"}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(m.sent) != 1 {
		t.Errorf("sent = %d, want 1 after retry", len(m.sent))
	}
}

func TestDeliver_PlainErrorFails(t *testing.T) {
	m := &mockSession{errs: []error{errors.New("missing access")}}
	s, _ := New(Opts{Channel: "chan", Session: m})
	if err := s.Deliver(context.Background(), notify.Event{Kind: notify.TrackQueued, TrackID: "t"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_RequiresChannel(t *testing.T) {
	if _, err := New(Opts{BotToken: "tok"}); err == nil {
		t.Fatal("expected channel error")
	}
}
