package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChannel_IsValid(t *testing.T) {
	tests := []struct {
		name    string
		channel Channel
		want    bool
	}{
		{"valid sms", ChannelSMS, true},
		{"valid email", ChannelEmail, true},
		{"valid push", ChannelPush, true},
		{"invalid channel", Channel("invalid"), false},
		{"empty channel", Channel(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.channel.IsValid())
		})
	}
}

func TestPriority_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		priority Priority
		want     bool
	}{
		{"valid high", PriorityHigh, true},
		{"valid normal", PriorityNormal, true},
		{"valid low", PriorityLow, true},
		{"invalid priority", Priority("invalid"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.priority.IsValid())
		})
	}
}

func TestPriorityTiers(t *testing.T) {
	assert.Equal(t, []Priority{PriorityHigh, PriorityNormal, PriorityLow}, PriorityTiers())
}

func TestStatus_IsClaimable(t *testing.T) {
	tests := []struct {
		name   string
		status Status
		want   bool
	}{
		{"queued is claimable", StatusQueued, true},
		{"retry due is claimable", StatusRetryDue, true},
		{"sending is not claimable", StatusSending, false},
		{"sent is not claimable", StatusSent, false},
		{"failed is not claimable", StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsClaimable())
		})
	}
}

func TestNewNotification(t *testing.T) {
	params := map[string]any{"code": "123456"}
	channels := []Channel{ChannelSMS, ChannelEmail}

	n := NewNotification("user-1", "template-1", "idem-key-1", params, channels, PriorityHigh)

	assert.NotEqual(t, [16]byte{}, n.ID)
	assert.Equal(t, "user-1", n.UserID)
	assert.Equal(t, "template-1", n.TemplateID)
	assert.Equal(t, "idem-key-1", n.IdempotencyKey)
	assert.Equal(t, PriorityHigh, n.Priority)
	assert.Len(t, n.Channels, 2)
	assert.NotZero(t, n.CreatedAt)
	assert.NotZero(t, n.UpdatedAt)

	for _, cs := range n.Channels {
		assert.Equal(t, StatusQueued, cs.Status)
		assert.Equal(t, 0, cs.AttemptCount)
		assert.Nil(t, cs.LastError)
		assert.NotNil(t, cs.NextAttemptAt)
	}
}

func TestDeriveOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"any failed dominates", []Status{StatusSent, StatusFailed}, StatusFailed},
		{"all read", []Status{StatusRead, StatusRead}, StatusRead},
		{"all delivered or read", []Status{StatusDelivered, StatusRead}, StatusDelivered},
		{"all sent or better", []Status{StatusSent, StatusDelivered}, StatusSent},
		{"any sending present", []Status{StatusQueued, StatusSending}, StatusSending},
		{"any retry due present", []Status{StatusQueued, StatusRetryDue}, StatusRetryDue},
		{"default queued", []Status{StatusQueued, StatusQueued}, StatusQueued},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			channels := make([]ChannelState, len(tt.statuses))
			for i, s := range tt.statuses {
				channels[i] = ChannelState{Status: s}
			}
			assert.Equal(t, tt.want, DeriveOverallStatus(channels))
		})
	}
}

func TestDeriveOverallStatus_EmptyChannels(t *testing.T) {
	assert.Equal(t, StatusQueued, DeriveOverallStatus(nil))
}

func TestChannelState_CreatedAt(t *testing.T) {
	n := NewNotification("user-1", "template-1", "idem-key-2", nil, []Channel{ChannelPush}, PriorityLow)
	assert.WithinDuration(t, time.Now().UTC(), n.Channels[0].CreatedAt, time.Second)
}
