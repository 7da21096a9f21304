package trickster

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	// snapshots shorter than this many words never create a message,
	// avoiding a flickering one-word reply
	relayMinWords = 3

	// minimum interval between message edits
	relayEditInterval = 1500 * time.Millisecond

	// sleep between channel drains
	relayPollInterval = 50 * time.Millisecond
)

// relayStream consumes growing reply snapshots and mirrors them into a
// single discord message: create once enough words have accumulated,
// then edit on a fixed cadence only when the content changed, with one
// final edit when the stream closes. Cancelling the context stops the
// relay promptly.
func relayStream(
	ctx context.Context,
	session DiscordSessionHandler,
	logger *slog.Logger,
	channelID string,
	reference *discordgo.MessageReference,
	snapshots <-chan string,
) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		latest    string
		published string
		messageID string
		lastEdit  time.Time
		closed    bool
	)

	publish := func(final bool) {
		if latest == "" || latest == published {
			return
		}
		if messageID == "" {
			if len(strings.Fields(latest)) < relayMinWords && !final {
				return
			}
			msg, err := session.ChannelMessageSendReply(
				channelID,
				latest,
				reference,
			)
			if err != nil {
				logger.Error("error creating streamed reply", tint.Err(err))
				return
			}
			messageID = msg.ID
			published = latest
			lastEdit = time.Now()
			return
		}
		if !final && time.Since(lastEdit) < relayEditInterval {
			return
		}
		if _, err := session.ChannelMessageEdit(channelID, messageID, latest); err != nil {
			logger.Error("error editing streamed reply", tint.Err(err))
			return
		}
		published = latest
		lastEdit = time.Now()
	}

	for !closed {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				closed = true
				break
			}
			latest = snapshot
		case <-time.After(relayPollInterval):
		}
		publish(false)
	}

	// drain anything buffered after closure, then flush
	for snapshot := range snapshots {
		latest = snapshot
	}
	publish(true)
}
