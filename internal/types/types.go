package types

import (
	"slices"
	"time"
)

// TimestampFormat matches the millisecond ISO-8601 form clients already parse.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

type Room struct {
	Id             string    `json:"id"`
	Name           string    `json:"name"`
	Messages       []Message `json:"messages"`
	PinnedMessages []Message `json:"pinnedMessages"`
}

type RoomSummary struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int    `json:"messageCount"`
	PinnedCount  int    `json:"pinnedCount"`
}

type Message struct {
	Id        string     `json:"id"`
	Text      string     `json:"text"`
	UserId    string     `json:"userId"`
	UserName  string     `json:"userName"`
	Timestamp string     `json:"timestamp"`
	Reactions []Reaction `json:"reactions"`
	FileInfo  *FileInfo  `json:"fileInfo,omitempty"`
}

type Reaction struct {
	Emoji string   `json:"emoji"`
	Users []string `json:"users"`
	Count int      `json:"count"`
}

type FileInfo struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Type   string `json:"type"`
	Base64 string `json:"base64"`
}

// NewRoom returns an empty room whose display name is its id.
func NewRoom(id string) *Room {
	return &Room{
		Id:             id,
		Name:           id,
		Messages:       []Message{},
		PinnedMessages: []Message{},
	}
}

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Id:           r.Id,
		Name:         r.Name,
		MessageCount: len(r.Messages),
		PinnedCount:  len(r.PinnedMessages),
	}
}

// FindMessage returns the index of the message with the given id in the
// room's history, or -1.
func (r *Room) FindMessage(id string) int {
	return slices.IndexFunc(r.Messages, func(m Message) bool { return m.Id == id })
}

func (r *Room) IsPinned(id string) bool {
	return slices.ContainsFunc(r.PinnedMessages, func(m Message) bool { return m.Id == id })
}

// Normalize replaces nil slices left behind by decoding older snapshots so
// that rooms always encode their lists as arrays.
func (r *Room) Normalize() {
	if r.Messages == nil {
		r.Messages = []Message{}
	}
	if r.PinnedMessages == nil {
		r.PinnedMessages = []Message{}
	}
	for i := range r.Messages {
		if r.Messages[i].Reactions == nil {
			r.Messages[i].Reactions = []Reaction{}
		}
	}
	for i := range r.PinnedMessages {
		if r.PinnedMessages[i].Reactions == nil {
			r.PinnedMessages[i].Reactions = []Reaction{}
		}
	}
}

func (r *Room) Clone() Room {
	return Room{
		Id:             r.Id,
		Name:           r.Name,
		Messages:       CloneMessages(r.Messages),
		PinnedMessages: CloneMessages(r.PinnedMessages),
	}
}

func (m Message) Clone() Message {
	out := m
	out.Reactions = CloneReactions(m.Reactions)
	if m.FileInfo != nil {
		fi := *m.FileInfo
		out.FileInfo = &fi
	}
	return out
}

func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

func CloneReactions(reactions []Reaction) []Reaction {
	out := make([]Reaction, len(reactions))
	for i, r := range reactions {
		out[i] = Reaction{
			Emoji: r.Emoji,
			Users: slices.Clone(r.Users),
			Count: r.Count,
		}
		if out[i].Users == nil {
			out[i].Users = []string{}
		}
	}
	return out
}
