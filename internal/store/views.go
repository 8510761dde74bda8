package store

import (
	"time"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/status"
)

// NewStatusView converts a status into its JSON form.
func NewStatusView(r status.Result, message string, updatedAt time.Time) StatusView {
	v := StatusView{
		Result:  r.String(),
		Label:   r.DisplayName(),
		Message: message,
	}
	if !updatedAt.IsZero() {
		t := updatedAt
		v.UpdatedAt = &t
	}
	return v
}

// NewHistoryView converts history entries, newest first, into their JSON form.
func NewHistoryView(entries []history.Entry) HistoryView {
	v := HistoryView{Entries: make([]HistoryEntryView, 0, len(entries))}
	for _, e := range entries {
		v.Entries = append(v.Entries, HistoryEntryView{
			Time:       e.Time,
			From:       e.OldResult.DisplayName(),
			To:         e.NewResult.DisplayName(),
			OldMessage: e.OldMessage,
			Message:    e.NewMessage,
		})
	}
	return v
}
