package trickster

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

// number of recent messages retained per channel for prompt context
const channelContextSize = 25

// DiscordSessionHandler abstracts the discordgo session operations the
// bot performs, so handlers can be exercised against a stub session.
type DiscordSessionHandler interface {
	Open() error
	Close() error
	AddHandler(handler any) func()

	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSendReply(
		channelID string,
		content string,
		reference *discordgo.MessageReference,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageEdit(
		channelID string,
		messageID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageDelete(
		channelID string,
		messageID string,
		options ...discordgo.RequestOption,
	) error
	MessageReactionAdd(
		channelID string,
		messageID string,
		emojiID string,
		options ...discordgo.RequestOption,
	) error
	ChannelEdit(
		channelID string,
		data *discordgo.ChannelEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)
	GuildMember(
		guildID string,
		userID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Member, error)
	GuildMemberTimeout(
		guildID string,
		userID string,
		until *time.Time,
		options ...discordgo.RequestOption,
	) error
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// DiscordSession implements DiscordSessionHandler backed by a real
// discordgo session.
type DiscordSession struct {
	*discordgo.Session
	logger *slog.Logger
}

func (d DiscordSession) Open() error {
	d.logger.Info("opening gateway connection")
	return d.Session.Open()
}

func (d DiscordSession) Close() error {
	d.logger.Info("closing gateway connection")
	return d.Session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.Session.AddHandler(handler)
}

// cachedMessage is one line of per-channel conversation context.
type cachedMessage struct {
	AuthorID   string
	AuthorName string
	Content    string
}

// messageCache retains the last few messages per channel, for prompt
// context. It never touches the network.
type messageCache struct {
	mu       sync.Mutex
	channels map[string][]cachedMessage
}

func newMessageCache() *messageCache {
	return &messageCache{channels: map[string][]cachedMessage{}}
}

func (c *messageCache) add(channelID string, msg cachedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := append(c.channels[channelID], msg)
	if len(msgs) > channelContextSize {
		msgs = msgs[len(msgs)-channelContextSize:]
	}
	c.channels[channelID] = msgs
}

// recent returns up to n of the most recent messages, oldest first.
func (c *messageCache) recent(channelID string, n int) []cachedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.channels[channelID]
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]cachedMessage, len(msgs))
	copy(out, msgs)
	return out
}

// messageDisplayName picks the best display name available on a
// gateway message.
func messageDisplayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author == nil {
		return ""
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// messageMentionsUser reports whether the message mentions the given
// user directly (not via @everyone).
func messageMentionsUser(m *discordgo.Message, userID string) bool {
	for _, mention := range m.Mentions {
		if mention != nil && mention.ID == userID {
			return true
		}
	}
	return false
}
