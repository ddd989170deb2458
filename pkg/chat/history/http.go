package history

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-go-golems/livechat/pkg/chat"
	"github.com/go-go-golems/livechat/pkg/chat/auth"
)

// getJSON performs an authenticated GET and decodes the body into out.
// Status codes map onto the chat error kinds; notFound is the cause
// reported for a 404.
func getJSON(ctx context.Context, client *http.Client, cred auth.Credential, op, u string, notFound error, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return chat.NewError(chat.ErrNetwork, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if tok := cred.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return chat.NewError(chat.ErrNetwork, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return chat.NewError(chat.ErrNotFound, op, notFound)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return chat.NewError(chat.ErrAuth, op, errors.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return chat.NewError(chat.ErrNetwork, op, errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return chat.NewError(chat.ErrNetwork, op, errors.Wrap(err, "decode response"))
	}
	return nil
}
