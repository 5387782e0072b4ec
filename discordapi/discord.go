// Package discordapi wraps the Discord REST API for the two operations the
// ingestion core performs: posting announcement messages and deleting
// previously posted ones. Gateway/interaction handling is out of scope.
package discordapi

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// api is the slice of *discordgo.Session the client uses.
type api interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// Client sends and deletes channel messages using a bot token.
type Client struct {
	api api
}

// New builds a REST-only client. No gateway connection is opened; send/delete
// are plain HTTP calls.
func New(botToken string) (*Client, error) {
	if botToken == "" {
		return nil, fmt.Errorf("empty discord bot token")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &Client{api: session}, nil
}

// SendMessage posts content to a channel and returns the created message id.
func (c *Client) SendMessage(ctx context.Context, channelID, content string) (string, error) {
	msg, err := c.api.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("send message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// DeleteMessage removes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	if err := c.api.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("delete message %s in %s: %w", messageID, channelID, err)
	}
	return nil
}
