package syncer

import (
	"context"

	"ChatSync/module/chat/model"
	"ChatSync/tools/errs"
)

// Lister is the read side of the message store.
type Lister interface {
	ListMessages(ctx context.Context, channelID string, page, limit int) (*model.Page, error)
}

// Cursor tracks how far back the window reaches. Page 1 is the most recent.
type Cursor struct {
	Page     int `json:"page"`
	MaxPages int `json:"max_pages"`
}

func NewCursor() Cursor { return Cursor{Page: 1, MaxPages: 1} }

// Exhausted reports whether no older page is left.
func (c Cursor) Exhausted() bool { return c.Page >= c.MaxPages }

// PageResult is one fetched page in chronological order.
type PageResult struct {
	Page       int
	Messages   []model.Message
	TotalPages int
}

// Pager fetches pages and applies them to a window/cursor pair. It holds no
// per-channel state, so the engine owns the guard against stale results.
type Pager struct {
	lister   Lister
	pageSize int
}

func NewPager(lister Lister, pageSize int) *Pager {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Pager{lister: lister, pageSize: pageSize}
}

func (p *Pager) PageSize() int { return p.pageSize }

// Fetch loads one page. The store answers newest first; the result is reversed.
func (p *Pager) Fetch(ctx context.Context, channelID string, page int) (PageResult, error) {
	if channelID == "" {
		return PageResult{}, errs.ErrNoChannelSelected.WrapMsg("load page")
	}
	if page < 1 {
		return PageResult{}, errs.ErrArgs.WrapMsg("page must be >= 1", "page", page)
	}
	res, err := p.lister.ListMessages(ctx, channelID, page, p.pageSize)
	if err != nil {
		return PageResult{}, err
	}
	n := len(res.Data)
	msgs := make([]model.Message, n)
	for i, m := range res.Data {
		msgs[n-1-i] = m
	}
	return PageResult{Page: page, Messages: msgs, TotalPages: res.Pages}, nil
}

// Apply writes a fetched page into w and moves c. Page 1 replaces the window;
// entries in carry (appended live since the reset) that the page does not hold
// are kept. Older pages are prepended with duplicates skipped.
func (p *Pager) Apply(w *Window, c *Cursor, res PageResult, carry []model.Message) {
	if res.Page == 1 {
		w.ReplaceAll(res.Messages)
		for _, m := range carry {
			w.Insert(m)
		}
	} else {
		w.Prepend(res.Messages)
	}
	c.Page = res.Page
	c.MaxPages = res.TotalPages
	if c.MaxPages < 1 {
		c.MaxPages = 1
	}
	if c.Page > c.MaxPages {
		// pages shrank while we paged back
		c.MaxPages = c.Page
	}
}
