package history

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/persistence/chatstore"
)

// StoreLoader serves history from the local message cache.
type StoreLoader struct {
	Store    chatstore.MessageStore
	PageSize int
}

var (
	_ Loader = &StoreLoader{}
	_ Pager  = &StoreLoader{}
)

func (l *StoreLoader) Load(ctx context.Context, conversationID string) (Page, error) {
	if l == nil || l.Store == nil {
		return Page{}, errors.New("store loader: store is nil")
	}
	_, ok, err := l.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return Page{}, chat.NewError(chat.ErrNetwork, "load cached history", err)
	}
	if !ok {
		return Page{}, chat.NewError(chat.ErrNotFound, "load cached history", errors.Errorf("conversation %s not cached", conversationID))
	}
	return l.list(ctx, conversationID, nil)
}

func (l *StoreLoader) LoadMore(ctx context.Context, conversationID string, cursor chat.Cursor) (Page, error) {
	if l == nil || l.Store == nil {
		return Page{}, errors.New("store loader: store is nil")
	}
	return l.list(ctx, conversationID, &cursor)
}

func (l *StoreLoader) list(ctx context.Context, conversationID string, cursor *chat.Cursor) (Page, error) {
	msgs, more, err := l.Store.ListMessages(ctx, conversationID, cursor, l.PageSize)
	if err != nil {
		return Page{}, chat.NewError(chat.ErrNetwork, "load cached history", err)
	}
	return Page{Messages: msgs, HasMore: more}, nil
}

// CachingLoader decorates a loader and writes every page it returns into Store.
// Cache write failures are logged and never fail the load.
type CachingLoader struct {
	Loader Loader
	Store  chatstore.MessageStore
}

var (
	_ Loader = &CachingLoader{}
	_ Pager  = &CachingLoader{}
)

func (l *CachingLoader) Load(ctx context.Context, conversationID string) (Page, error) {
	page, err := l.Loader.Load(ctx, conversationID)
	if err != nil {
		return page, err
	}
	l.remember(ctx, conversationID, page)
	return page, nil
}

// LoadMore delegates to the wrapped loader when it paginates.
func (l *CachingLoader) LoadMore(ctx context.Context, conversationID string, cursor chat.Cursor) (Page, error) {
	pager, ok := l.Loader.(Pager)
	if !ok {
		return Page{}, nil
	}
	page, err := pager.LoadMore(ctx, conversationID, cursor)
	if err != nil {
		return page, err
	}
	l.remember(ctx, conversationID, page)
	return page, nil
}

func (l *CachingLoader) remember(ctx context.Context, conversationID string, page Page) {
	if l.Store == nil {
		return
	}
	if len(page.Messages) > 0 {
		// messages register the conversation with its participants
		if err := l.Store.UpsertMessages(ctx, page.Messages...); err != nil {
			log.Warn().Err(err).Str("component", "history").Str("conv_id", conversationID).Msg("cache history page failed")
		}
		return
	}
	if err := l.Store.UpsertConversation(ctx, chat.Conversation{ID: conversationID}); err != nil {
		log.Warn().Err(err).Str("component", "history").Str("conv_id", conversationID).Msg("cache conversation failed")
	}
}
