package history

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
	"github.com/go-go-golems/livechat/pkg/persistence/chatstore"
)

// Directory lists the conversations the signed-in user takes part in.
type Directory interface {
	List(ctx context.Context) ([]chat.Conversation, error)
}

// HTTPDirectory reads the conversation directory from the REST API:
//
//	GET {BaseURL}/conversations
//
// The response body is {"data": [...conversations]}.
type HTTPDirectory struct {
	BaseURL    string
	Credential auth.Credential
	HTTPClient *http.Client
}

var _ Directory = &HTTPDirectory{}

type conversationsResponse struct {
	Data []chat.Conversation `json:"data"`
}

func NewHTTPDirectory(baseURL string, cred auth.Credential) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Credential: cred,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// List returns the conversations, most recently active first.
func (d *HTTPDirectory) List(ctx context.Context) ([]chat.Conversation, error) {
	const op = "list conversations"
	var body conversationsResponse
	if err := getJSON(ctx, d.HTTPClient, d.Credential, op, d.BaseURL+"/conversations", errors.New("conversation directory"), &body); err != nil {
		return nil, err
	}
	out := make([]chat.Conversation, 0, len(body.Data))
	for _, c := range body.Data {
		if strings.TrimSpace(c.ID) == "" {
			return nil, chat.NewError(chat.ErrNetwork, op, errors.New("conversation without id"))
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	log.Debug().Str("component", "history").Int("count", len(out)).Msg("conversation directory loaded")
	return out, nil
}

// CachingDirectory records every listed conversation in Store.
type CachingDirectory struct {
	Directory Directory
	Store     chatstore.MessageStore
}

var _ Directory = &CachingDirectory{}

func (d *CachingDirectory) List(ctx context.Context) ([]chat.Conversation, error) {
	convs, err := d.Directory.List(ctx)
	if err != nil {
		return nil, err
	}
	if d.Store == nil {
		return convs, nil
	}
	for _, c := range convs {
		if err := d.Store.UpsertConversation(ctx, c); err != nil {
			log.Warn().Err(err).Str("component", "history").Str("conv_id", c.ID).Msg("cache conversation failed")
		}
	}
	return convs, nil
}
