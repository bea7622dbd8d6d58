package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/avalia-ganha/avalia/internal/domain"
)

// ─── Remote Run ─────────────────────────────────────────────────────────────

// remoteClient talks to a running avalia server.
type remoteClient struct {
	base string
	http *http.Client
}

func newRemoteClient(base string) *remoteClient {
	return &remoteClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// call sends body as JSON and returns the raw response. Non-2xx responses
// become errors carrying the server's error message.
func (c *remoteClient) call(ctx context.Context, method, path string, body any) (string, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error.message").String()
		if msg == "" {
			msg = resp.Status
		}
		return "", fmt.Errorf("%s %s: %s", method, path, msg)
	}
	return string(data), nil
}

// waitFor polls the session until cond holds for its JSON view.
func (c *remoteClient) waitFor(ctx context.Context, sid string, poll time.Duration, cond func(gjson.Result) bool) (gjson.Result, error) {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		body, err := c.call(ctx, http.MethodGet, "/api/sessions/"+sid, nil)
		if err != nil {
			return gjson.Result{}, err
		}
		view := gjson.Parse(body)
		if cond(view) {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return gjson.Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func simulateRemote(ctx context.Context, w io.Writer, base string, opts simOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c := newRemoteClient(base)

	catalog, err := c.call(ctx, http.MethodGet, "/api/catalog", nil)
	if err != nil {
		return err
	}
	created, err := c.call(ctx, http.MethodPost, "/api/sessions", nil)
	if err != nil {
		return err
	}
	sid := gjson.Get(created, "id").String()
	tasks := gjson.Get(catalog, "tasks").Array()
	fmt.Fprintf(w, "Session %s on %s (%d tasks)\n", sid, c.base, len(tasks))

	for i, t := range tasks {
		id := t.Get("id").Int()
		kind := t.Get("kind").String()
		prefix := fmt.Sprintf("/api/sessions/%s/tasks/%d", sid, id)
		fmt.Fprintf(w, "\nTask %d/%d  %s [%s]\n", i+1, len(tasks), t.Get("title").String(), kind)

		var award string
		switch kind {
		case "video":
			if _, err = c.call(ctx, http.MethodPost, prefix+"/watch", nil); err == nil {
				award, err = c.call(ctx, http.MethodPost, prefix+"/evaluate", map[string]any{"approved": true})
			}
		case "app":
			if _, err = c.call(ctx, http.MethodPost, prefix+"/app/open", nil); err == nil {
				award, err = c.call(ctx, http.MethodPost, prefix+"/evaluate", map[string]any{"approved": true})
			}
		case "game":
			award, err = c.call(ctx, http.MethodPost, prefix+"/score", map[string]any{"score": opts.Score})
		default:
			err = fmt.Errorf("unknown task kind %q", kind)
		}
		if err != nil {
			return fmt.Errorf("task %d: %w", id, err)
		}
		fmt.Fprintf(w, "  earned %s (applied %s)\n",
			brl(gjson.Get(award, "nominal")), brl(gjson.Get(award, "applied")))

		next := int64(i + 1)
		view, err := c.waitFor(ctx, sid, opts.Poll, func(v gjson.Result) bool {
			return v.Get("snapshot.current_index").Int() >= next
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  [%s] %3.0f%% | %s\n",
			renderBar(view.Get("progress_pct").Float()), view.Get("progress_pct").Float(), view.Get("balance_text").String())
	}

	// The last bonus may still be pending after the final advance.
	if _, err := c.waitFor(ctx, sid, opts.Poll, func(v gjson.Result) bool {
		return v.Get("snapshot.finished").Bool() && !v.Get("snapshot.bonus").Exists()
	}); err != nil {
		return err
	}

	res, err := c.call(ctx, http.MethodPost, "/api/sessions/"+sid+"/offer", map[string]any{"plan": opts.Plan})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nOffer %s: %s\nBalance %s, redirect after %dms\n",
		gjson.Get(res, "plan").String(), gjson.Get(res, "url").String(),
		gjson.Get(res, "balance_text").String(), gjson.Get(res, "redirect_after_ms").Int())
	return nil
}

// brl formats a JSON decimal (string or number) as currency.
func brl(v gjson.Result) string {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return v.String()
	}
	return domain.FormatBRL(d)
}
