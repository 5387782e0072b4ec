package discordapi

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type fakeAPI struct {
	sentChannel   string
	sentContent   string
	deleteChannel string
	deleteMessage string
	err           error
}

func (f *fakeAPI) ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sentChannel = channelID
	f.sentContent = content
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "msg-1"}, nil
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error {
	f.deleteChannel = channelID
	f.deleteMessage = messageID
	return f.err
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") should fail")
	}
}

func TestSendMessage(t *testing.T) {
	f := &fakeAPI{}
	c := &Client{api: f}
	id, err := c.SendMessage(context.Background(), "chan-1", "new stream live")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if id != "msg-1" {
		t.Errorf("message id = %s, want msg-1", id)
	}
	if f.sentChannel != "chan-1" || f.sentContent != "new stream live" {
		t.Errorf("sent (%s, %s)", f.sentChannel, f.sentContent)
	}
}

func TestSendMessageError(t *testing.T) {
	c := &Client{api: &fakeAPI{err: errors.New("missing permissions")}}
	if _, err := c.SendMessage(context.Background(), "chan-1", "hi"); err == nil {
		t.Error("SendMessage() should surface API errors")
	}
}

func TestDeleteMessage(t *testing.T) {
	f := &fakeAPI{}
	c := &Client{api: f}
	if err := c.DeleteMessage(context.Background(), "chan-1", "msg-9"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if f.deleteChannel != "chan-1" || f.deleteMessage != "msg-9" {
		t.Errorf("deleted (%s, %s)", f.deleteChannel, f.deleteMessage)
	}
}
