package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"streamspace/internal/domain"
)

func TestMessageLog_HistoryForUnknownRoomIsEmpty(t *testing.T) {
	log := NewMessageLog(0)

	history := log.History("nosuch")
	require.NotNil(t, history)
	require.Empty(t, history)
}

func TestMessageLog_EvictsOldestBeyondLimit(t *testing.T) {
	log := NewMessageLog(0)

	var second domain.Message
	for i := 1; i <= HistoryLimit+1; i++ {
		msg := domain.NewMessage("demo", alice, fmt.Sprintf("message %d", i), time.Time{})
		if i == 2 {
			second = msg
		}
		log.Append("demo", msg)
	}

	history := log.History("demo")
	require.Len(t, history, HistoryLimit)
	require.Equal(t, second, history[0])
	require.Equal(t, "message 101", history[len(history)-1].Text)
}

func TestMessageLog_SmallLimit(t *testing.T) {
	log := NewMessageLog(3)

	for i := 1; i <= 5; i++ {
		log.Append("demo", domain.NewMessage("demo", bob, fmt.Sprintf("m%d", i), time.Time{}))
	}

	history := log.History("demo")
	require.Len(t, history, 3)
	require.Equal(t, "m3", history[0].Text)
	require.Equal(t, "m5", history[2].Text)
}

func TestMessageLog_DropRoomClearsHistory(t *testing.T) {
	log := NewMessageLog(0)

	log.Append("demo", domain.NewMessage("demo", alice, "hello", time.Time{}))
	require.Len(t, log.History("demo"), 1)

	log.DropRoom("demo")
	require.Empty(t, log.History("demo"))
}
