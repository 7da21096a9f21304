package trickster

import (
	"fmt"
	"io"

	"github.com/bwmarrin/discordgo"
)

// CommandKind enumerates the shapes of response a message can produce.
type CommandKind int

const (
	// CommandNothing means the message produced no visible response
	CommandNothing CommandKind = iota
	// CommandText sends a plain channel message
	CommandText
	// CommandReply sends a message referencing the triggering one
	CommandReply
	// CommandReact adds an emoji reaction to the triggering message
	CommandReact
	// CommandFile sends a message with a file attachment
	CommandFile
)

func (k CommandKind) String() string {
	switch k {
	case CommandNothing:
		return "nothing"
	case CommandText:
		return "text"
	case CommandReply:
		return "reply"
	case CommandReact:
		return "react"
	case CommandFile:
		return "file"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Command is the dispatcher's verdict for a single incoming message.
type Command struct {
	Kind  CommandKind
	Text  string
	Emoji string

	FileName string
	FileBody io.Reader
}

func textCommand(format string, args ...any) Command {
	return Command{Kind: CommandText, Text: fmt.Sprintf(format, args...)}
}

func replyCommand(format string, args ...any) Command {
	return Command{Kind: CommandReply, Text: fmt.Sprintf(format, args...)}
}

func reactCommand(emoji string) Command {
	return Command{Kind: CommandReact, Emoji: emoji}
}

func fileCommand(text string, name string, body io.Reader) Command {
	return Command{Kind: CommandFile, Text: text, FileName: name, FileBody: body}
}

func nothingCommand() Command {
	return Command{Kind: CommandNothing}
}

// Effectful reports whether executing this command counts against the
// sender's rate limit buckets.
func (c Command) Effectful() bool {
	return c.Kind != CommandNothing
}

// execute performs the command against the given session. Text content
// is clamped to the discord message length limit.
func (c Command) execute(
	session DiscordSessionHandler,
	m *discordgo.MessageCreate,
) error {
	switch c.Kind {
	case CommandNothing:
		return nil
	case CommandText:
		_, err := session.ChannelMessageSend(
			m.ChannelID,
			truncate(c.Text, discordMaxMessageLength),
		)
		return err
	case CommandReply:
		_, err := session.ChannelMessageSendReply(
			m.ChannelID,
			truncate(c.Text, discordMaxMessageLength),
			m.Reference(),
		)
		return err
	case CommandReact:
		return session.MessageReactionAdd(m.ChannelID, m.ID, c.Emoji)
	case CommandFile:
		_, err := session.ChannelMessageSendComplex(
			m.ChannelID,
			&discordgo.MessageSend{
				Content: truncate(c.Text, discordMaxMessageLength),
				Files: []*discordgo.File{
					{Name: c.FileName, Reader: c.FileBody},
				},
			},
		)
		return err
	default:
		return fmt.Errorf("unknown command kind: %d", int(c.Kind))
	}
}
