package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-podcast/internal/session"
)

// apiClient talks to the podcastd control API.
type apiClient struct {
	base string
	http *http.Client
	// stream has no timeout; event streams live as long as their context.
	stream *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: 15 * time.Second},
		stream: &http.Client{},
	}
}

// apiError is the error envelope returned by podcastd.
type apiError struct {
	Status    int    `json:"-"`
	Message   string `json:"error"`
	Field     string `json:"field,omitempty"`
	Provider  string `json:"provider,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("podcastd returned %d", e.Status)
	}
	return e.Message
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// events opens the snapshot stream. The first snapshot is the current one.
// The returned channel closes when ctx ends or the stream breaks; the error
// channel then carries the cause, if any.
func (c *apiClient) events(ctx context.Context) (<-chan session.Snapshot, <-chan error, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/session/events", nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, &apiError{Status: resp.StatusCode}
	}

	snaps := make(chan session.Snapshot, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(snaps)
		defer resp.Body.Close()
		err := readEvents(resp.Body, func(data []byte) error {
			var snap session.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			select {
			case snaps <- snap:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && ctx.Err() == nil {
			errs <- err
		}
		close(errs)
	}()
	return snaps, errs, nil
}

// readEvents splits a server-sent event stream and hands every data payload
// to fn.
func readEvents(r io.Reader, fn func([]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var data []byte
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				if err := fn(data); err != nil {
					return err
				}
				data = nil
			}
		case strings.HasPrefix(line, "data:"):
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")...)
		}
	}
	return sc.Err()
}
