package notify

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Compile-time check: Discord must implement Notifier.
var _ Notifier = (*Discord)(nil)

// messageSender is the slice of discordgo.Session used by Discord. Narrowed
// to an interface so tests can inject a fake without a live gateway.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord posts call summaries to a single Discord channel. Only REST calls
// are used; the gateway connection is never opened.
type Discord struct {
	session   messageSender
	channelID string
}

// NewDiscord creates a Discord notifier from a bot token and target channel.
func NewDiscord(token, channelID string) (*Discord, error) {
	if token == "" || channelID == "" {
		return nil, fmt.Errorf("notify: discord token and channel id are required")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("notify: create discord session: %w", err)
	}
	return &Discord{session: session, channelID: channelID}, nil
}

// Send posts the message to the configured channel.
func (d *Discord) Send(ctx context.Context, text string) error {
	if _, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("notify: discord send: %w", err)
	}
	return nil
}
