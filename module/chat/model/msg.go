package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ===== 作者 =====

type AuthorKind string

const (
	AuthorUser    AuthorKind = "user"
	AuthorSystem  AuthorKind = "system"
	AuthorWebhook AuthorKind = "webhook"
)

// Author is the tagged author variant. Every kind carries a display identity.
type Author struct {
	Kind        AuthorKind `json:"kind"`
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
}

func UserAuthor(id, name string) Author    { return Author{Kind: AuthorUser, ID: id, DisplayName: name} }
func SystemAuthor(name string) Author      { return Author{Kind: AuthorSystem, ID: "system", DisplayName: name} }
func WebhookAuthor(id, name string) Author { return Author{Kind: AuthorWebhook, ID: id, DisplayName: name} }

// IsUser reports whether the author is the user with the given id.
func (a Author) IsUser(userID string) bool {
	return a.Kind == AuthorUser && userID != "" && a.ID == userID
}

func (a *Author) UnmarshalJSON(b []byte) error {
	type raw Author
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	switch r.Kind {
	case AuthorUser, AuthorSystem, AuthorWebhook:
	case "":
		r.Kind = AuthorUser
	default:
		return fmt.Errorf("unknown author kind %q", r.Kind)
	}
	*a = Author(r)
	return nil
}

// ===== 消息 =====

// Attachment is only a reference; storage is handled elsewhere.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

type Message struct {
	UUID       string      `json:"uuid"`       // 客户端生成的幂等ID
	ChannelID  string      `json:"channel_id"` // 所属频道
	Body       string      `json:"body"`
	Author     Author      `json:"author"`
	CreatedAt  time.Time   `json:"created_at"` // 服务端时间，用于排序
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Draft is what the local user submits for creation.
type Draft struct {
	UUID       string      `json:"uuid"`
	ChannelID  string      `json:"channel_id"`
	Body       string      `json:"body"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Patch is the editable part of a message.
type Patch struct {
	Body string `json:"body"`
}

// Page is one response of the paginated read, newest first.
type Page struct {
	Data  []Message `json:"data"`
	Pages int       `json:"pages"`
}

// ===== 推送事件 =====

type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventUpdated
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventUpdated:
		return "updated"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is one live feed push scoped to a channel.
type Event struct {
	Kind    EventKind
	Message Message
}
