package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
)

const DefaultPageSize = 50

// HTTPLoader reads history from the marketplace REST API:
//
//	GET {BaseURL}/conversations/{id}/messages?limit=N[&before=<id>|&after=<id>]
//
// The response body is {"data": [...messages], "has_more": bool}.
type HTTPLoader struct {
	BaseURL    string
	Credential auth.Credential
	PageSize   int
	HTTPClient *http.Client
}

var (
	_ Loader = &HTTPLoader{}
	_ Pager  = &HTTPLoader{}
)

type messagesResponse struct {
	Data    []json.RawMessage `json:"data"`
	HasMore bool              `json:"has_more"`
}

func NewHTTPLoader(baseURL string, cred auth.Credential) *HTTPLoader {
	return &HTTPLoader{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Credential: cred,
		PageSize:   DefaultPageSize,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (l *HTTPLoader) Load(ctx context.Context, conversationID string) (Page, error) {
	return l.fetch(ctx, conversationID, nil)
}

func (l *HTTPLoader) LoadMore(ctx context.Context, conversationID string, cursor chat.Cursor) (Page, error) {
	return l.fetch(ctx, conversationID, &cursor)
}

func (l *HTTPLoader) fetch(ctx context.Context, conversationID string, cursor *chat.Cursor) (Page, error) {
	const op = "load history"
	if strings.TrimSpace(conversationID) == "" {
		return Page{}, chat.NewError(chat.ErrNotFound, op, errors.New("empty conversation id"))
	}

	q := url.Values{}
	pageSize := l.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	q.Set("limit", strconv.Itoa(pageSize))
	if cursor != nil {
		if cursor.Direction == chat.Newer {
			q.Set("after", cursor.ID)
		} else {
			q.Set("before", cursor.ID)
		}
	}
	u := l.BaseURL + "/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()

	var body messagesResponse
	notFound := errors.Errorf("conversation %s", conversationID)
	if err := getJSON(ctx, l.HTTPClient, l.Credential, op, u, notFound, &body); err != nil {
		return Page{}, err
	}

	msgs := make([]chat.Message, 0, len(body.Data))
	for _, raw := range body.Data {
		m, err := chat.DecodeMessage(raw)
		if err != nil {
			return Page{}, errors.Wrap(err, op)
		}
		if m.ConversationID != conversationID {
			return Page{}, chat.NewError(chat.ErrNetwork, op, errors.Errorf("message %s belongs to conversation %s", m.ID, m.ConversationID))
		}
		msgs = append(msgs, m)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return chat.Less(msgs[i], msgs[j]) })

	log.Debug().
		Str("component", "history").
		Str("conv_id", conversationID).
		Int("count", len(msgs)).
		Bool("has_more", body.HasMore).
		Msg("history page loaded")
	return Page{Messages: msgs, HasMore: body.HasMore}, nil
}
