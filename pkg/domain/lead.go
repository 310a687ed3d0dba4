package domain

import (
	"strings"
	"time"
)

// LeadStatus tracks where a chat stands in the funnel.
type LeadStatus string

const (
	// LeadInProgress is the default status while a conversation runs.
	LeadInProgress LeadStatus = "in_progress"
	// LeadCompleted suppresses all automated processing for the chat
	// until an operator reopens it.
	LeadCompleted LeadStatus = "completed"
	// LeadRemarketed marks leads already nudged by the re-engagement
	// job, so they are not nudged again.
	LeadRemarketed LeadStatus = "remarketed"
)

// Lead is the durable record of a chat's conversational history. Its
// lifecycle is independent of the Session: it survives session resets
// and graph replacements.
type Lead struct {
	ChatID           string     `json:"chatId"`
	Phone            string     `json:"phone"`
	Status           LeadStatus `json:"status"`
	FirstInteraction time.Time  `json:"firstInteraction"`
	LastInteraction  time.Time  `json:"lastInteraction"`
	LastMessage      string     `json:"lastMessage"`
}

// NewLead creates an in-progress lead for a chat seen for the first
// time, stamped with the caller's clock. The phone is derived from the
// chat identity by stripping the channel suffix
// (e.g. "5511999999999@c.us" -> "5511999999999").
func NewLead(chatID, firstMessage string, now time.Time) *Lead {
	return &Lead{
		ChatID:           chatID,
		Phone:            PhoneFromChatID(chatID),
		Status:           LeadInProgress,
		FirstInteraction: now,
		LastInteraction:  now,
		LastMessage:      firstMessage,
	}
}

// PhoneFromChatID strips the channel suffix from a chat identity.
func PhoneFromChatID(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}
