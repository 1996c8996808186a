package domain

import (
	"strings"
	"time"
)

type MessageID string

// Author is the public part of an identity shown next to a message.
type Author struct {
	ID    UserID `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func AuthorOf(i Identity) Author {
	return Author{ID: i.ID, Email: i.Email, Name: i.Name}
}

type Message struct {
	ID        MessageID `json:"id"`
	Content   string    `json:"content,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	AuthorID  UserID    `json:"authorId"`
	User      Author    `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy safe to hand out while the original stays in a store.
func (m *Message) Clone() *Message {
	c := *m
	return &c
}

// MessageDraft is the caller-supplied part of a new message.
type MessageDraft struct {
	Content  string `json:"content"`
	ImageURL string `json:"imageUrl"`
}

// Normalize trims surrounding whitespace from both fields.
func (d MessageDraft) Normalize() MessageDraft {
	return MessageDraft{
		Content:  strings.TrimSpace(d.Content),
		ImageURL: strings.TrimSpace(d.ImageURL),
	}
}

// IsEmpty reports whether neither field has non-blank text.
func (d MessageDraft) IsEmpty() bool {
	n := d.Normalize()
	return n.Content == "" && n.ImageURL == ""
}

// MessagePatch carries the fields an edit supplies. nil means unchanged.
type MessagePatch struct {
	Content  *string `json:"content"`
	ImageURL *string `json:"imageUrl"`
}

func (p MessagePatch) IsEmpty() bool {
	return p.Content == nil && p.ImageURL == nil
}

// ApplyTo returns the draft that results from applying p on top of m.
func (p MessagePatch) ApplyTo(m *Message) MessageDraft {
	d := MessageDraft{Content: m.Content, ImageURL: m.ImageURL}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.ImageURL != nil {
		d.ImageURL = *p.ImageURL
	}
	return d.Normalize()
}

type Pagination struct {
	Page    int   `json:"page"`
	PerPage int   `json:"perPage"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
}

// NewPagination computes the page count for total items.
func NewPagination(page, perPage int, total int64) Pagination {
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, Pages: pages}
}

// MessagePage is one page of messages in ascending creation order.
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// MessageDeleted is the payload of a deletion event.
type MessageDeleted struct {
	ID MessageID `json:"id"`
}
