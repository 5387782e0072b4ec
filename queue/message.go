// Package queue defines the ingest wire format and the NATS JetStream transport:
// message kinds, the size-bounded batch publisher (recursive splitter and chunked
// enqueuer), and the pull consumer that hands delivery batches to a router.
package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the discriminant tag on a queue message selecting its handler.
type Kind string

const (
	KindUpsertStream           Kind = "upsert-stream"
	KindTranslateStream        Kind = "translate-stream"
	KindUpsertClip             Kind = "upsert-clip"
	KindFetchClipsByCreator    Kind = "fetch-clips-by-creator"
	KindUpsertCreator          Kind = "upsert-creator"
	KindTranslateCreator       Kind = "translate-creator"
	KindUpsertDiscordServer    Kind = "upsert-discord-server"
	KindDeleteMessageInChannel Kind = "delete-message-in-channel"
	KindDiscordSendMessage     Kind = "discord-send-message"
)

// Valid reports whether k names a routable message kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUpsertStream, KindTranslateStream, KindUpsertClip, KindFetchClipsByCreator,
		KindUpsertCreator, KindTranslateCreator, KindUpsertDiscordServer,
		KindDeleteMessageInChannel, KindDiscordSendMessage:
		return true
	}
	return false
}

// Message is a single wire message: a JSON object with a required "kind" field
// plus kind-specific payload fields. Data holds the full object exactly as it
// appears on the wire so re-serialization is byte-stable.
type Message struct {
	Kind Kind
	Data []byte
}

// MarshalJSON writes the original wire object.
func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.Data) == 0 {
		return []byte("null"), nil
	}
	return m.Data, nil
}

// Decode parses a raw wire object into a Message. The kind may be empty or
// unrecognized; the router decides what to do with it.
func Decode(data []byte) (Message, error) {
	var probe struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return Message{Kind: probe.Kind, Data: data}, nil
}

// DecodeBatch parses one queue payload, which is either a JSON array of wire
// objects (the publisher always sends arrays) or a single bare object.
func DecodeBatch(data []byte) ([]Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		m, err2 := Decode(data)
		if err2 != nil {
			return nil, fmt.Errorf("decode batch: %w", err)
		}
		return []Message{m}, nil
	}
	msgs := make([]Message, 0, len(raws))
	for _, r := range raws {
		m, err := Decode(r)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// New builds a Message of the given kind from a payload struct. The kind tag is
// merged into the payload's own fields so the wire object stays flat.
func New(kind Kind, payload any) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return Message{}, fmt.Errorf("%s payload must be a JSON object: %w", kind, err)
	}
	fields["kind"], _ = json.Marshal(kind)
	data, err := json.Marshal(fields)
	if err != nil {
		return Message{}, err
	}
	return Message{Kind: kind, Data: data}, nil
}

// Payload shapes, one per kind. Validation tags are enforced by the per-kind
// handlers before any storage write.

// UpsertStreamPayload carries one stream record. A languageCode other than
// "default" writes only the translation sub-record.
type UpsertStreamPayload struct {
	RawID        string     `json:"rawId" validate:"required"`
	RawChannelID string     `json:"rawChannelId" validate:"required_without=LanguageCode"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	ViewCount    int64      `json:"viewCount" validate:"min=0"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	StartedAt    *time.Time `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt"`
	LanguageCode string     `json:"languageCode"`
}

// TranslateStreamPayload asks for a stream's title/description in one target language.
type TranslateStreamPayload struct {
	RawID              string `json:"rawId" validate:"required"`
	Title              string `json:"title" validate:"required"`
	Description        string `json:"description"`
	TargetLanguageCode string `json:"targetLanguageCode" validate:"required"`
}

// UpsertClipPayload carries one clip record; languageCode semantics match streams.
type UpsertClipPayload struct {
	RawID           string     `json:"rawId" validate:"required"`
	RawChannelID    string     `json:"rawChannelId" validate:"required_without=LanguageCode"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	ViewCount       int64      `json:"viewCount" validate:"min=0"`
	ThumbnailURL    string     `json:"thumbnailUrl"`
	DurationSeconds int        `json:"durationSeconds" validate:"min=0"`
	PublishedAt     *time.Time `json:"publishedAt"`
	LanguageCode    string     `json:"languageCode"`
}

// FetchClipsPayload triggers one pass of the creator fetch cursor.
type FetchClipsPayload struct {
	BatchSize     int    `json:"batchSize" validate:"required,min=1"`
	MaxQuotaUsage int    `json:"maxQuotaUsage" validate:"min=0"`
	MemberType    string `json:"memberType"`
}

// ChannelPayload is a platform channel owned by a creator.
type ChannelPayload struct {
	ID       string `json:"id" validate:"required"`
	Platform string `json:"platform" validate:"required,oneof=youtube twitch"`
	RawID    string `json:"rawId" validate:"required"`
	Title    string `json:"title"`
}

// UpsertCreatorPayload carries one creator record with its channels.
type UpsertCreatorPayload struct {
	ID           string           `json:"id" validate:"required"`
	MemberType   string           `json:"memberType"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	ThumbnailURL string           `json:"thumbnailUrl"`
	Channels     []ChannelPayload `json:"channels" validate:"dive"`
	LanguageCode string           `json:"languageCode"`
}

// TranslateCreatorPayload asks for a creator's name/description in one target language.
type TranslateCreatorPayload struct {
	ID                 string `json:"id" validate:"required"`
	Name               string `json:"name" validate:"required"`
	Description        string `json:"description"`
	TargetLanguageCode string `json:"targetLanguageCode" validate:"required"`
}

// UpsertDiscordServerPayload carries one subscribed guild.
type UpsertDiscordServerPayload struct {
	ID                string `json:"id" validate:"required"`
	Name              string `json:"name"`
	LanguageCode      string `json:"languageCode"`
	AnnounceChannelID string `json:"announceChannelId"`
}

// DeleteMessagePayload removes a previously sent announcement message.
type DeleteMessagePayload struct {
	ChannelID string `json:"channelId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

// DiscordSendPayload posts an announcement message to a channel.
type DiscordSendPayload struct {
	ChannelID string `json:"channelId" validate:"required"`
	Content   string `json:"content" validate:"required"`
}
