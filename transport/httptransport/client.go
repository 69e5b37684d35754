package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/rpckit"
)

// Client is an rpckit.Transport that speaks HTTP for unary/batch calls and
// a WebSocket for subscriptions, against a Server (or any host implementing
// the same wire contract).
type Client struct {
	baseURL string
	http    *http.Client
	dialer  *websocket.Dialer
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient, dialer: websocket.DefaultDialer}
}

func (c *Client) Call(ctx context.Context, path string, input any) (any, error) {
	body, err := json.Marshal(wireCallRequest{Path: path, Input: input})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload any
	var envelope struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	}
	dec := json.NewDecoder(resp.Body)
	peek := json.RawMessage{}
	if err := dec.Decode(&peek); err != nil {
		return nil, err
	}
	if json.Unmarshal(peek, &envelope) == nil && envelope.Code != "" {
		b, _ := json.Marshal(envelope)
		return nil, fmt.Errorf("%s", string(b))
	}
	if err := json.Unmarshal(peek, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (c *Client) CallBatch(ctx context.Context, requests []rpckit.BatchItem) (*rpckit.BatchResponse, error) {
	wireReqs := make([]wireBatchRequest, len(requests))
	for i, it := range requests {
		wireReqs[i] = wireBatchRequest{ID: it.ID, Path: it.Path, Input: it.Input}
	}
	body, err := json.Marshal(struct {
		Requests []wireBatchRequest `json:"requests"`
	}{Requests: wireReqs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batch", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotImplemented {
		return nil, rpckit.ErrBatchUnsupported
	}

	var wireResp wireBatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&wireResp); err != nil {
		return nil, err
	}
	results := make([]rpckit.BatchResult, len(wireResp.Results))
	for i, r := range wireResp.Results {
		res := rpckit.BatchResult{ID: r.ID, Data: r.Data}
		if r.Error != nil {
			b, _ := json.Marshal(r.Error)
			res.Err = fmt.Errorf("%s", string(b))
		}
		results[i] = res
	}
	return &rpckit.BatchResponse{Results: results}, nil
}

func (c *Client) Subscribe(ctx context.Context, path string, input any) (rpckit.EventSequence, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = u.Path + "/subscribe"
	q := u.Query()
	q.Set("path", path)
	if input != nil {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, err
		}
		q.Set("input", string(b))
	}
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &wsEventSequence{conn: conn}, nil
}

type wsEventSequence struct {
	conn *websocket.Conn
}

func (s *wsEventSequence) Next(ctx context.Context) (rpckit.Event, error) {
	type frame struct {
		Kind    string `json:"kind"`
		Payload any    `json:"payload,omitempty"`
		Error   struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}

	type result struct {
		f   frame
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		var f frame
		err := s.conn.ReadJSON(&f)
		resultCh <- result{f: f, err: err}
	}()

	select {
	case <-ctx.Done():
		return rpckit.Event{}, ctx.Err()
	case r := <-resultCh:
		if r.err != nil {
			return rpckit.Event{}, r.err
		}
		switch r.f.Kind {
		case "error":
			return rpckit.Event{Kind: rpckit.EventError, Err: fmt.Errorf("%s", r.f.Error.Message)}, nil
		case "completed":
			return rpckit.Event{Kind: rpckit.EventCompleted}, nil
		default:
			return rpckit.Event{Kind: rpckit.EventData, Payload: r.f.Payload}, nil
		}
	}
}

func (s *wsEventSequence) Cancel() error {
	return s.conn.Close()
}
