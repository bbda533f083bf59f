package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"taskboard/internal/models"
)

// errBoardGone is sent by the server as an error event when the board was
// deleted or access was revoked mid-stream.
var errBoardGone = errors.New("board no longer available")

// Subscribe opens the board's event stream and delivers every snapshot on the
// returned channel. Dropped connections are re-established with backoff; the
// first snapshot after a reconnect brings the caller up to date. The channel
// is closed when ctx is done or the server refuses the stream for good.
//
// The first connection is made before Subscribe returns so that bad
// credentials or an unknown board surface as an error.
func (c *Client) Subscribe(ctx context.Context, boardID string) (<-chan models.Snapshot, error) {
	resp, err := c.openStream(ctx, boardID)
	if err != nil {
		return nil, err
	}

	out := make(chan models.Snapshot, 1)
	go c.streamLoop(ctx, boardID, resp, out)
	return out, nil
}

func (c *Client) openStream(ctx context.Context, boardID string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/boards/"+escape(boardID)+"/stream", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream for board %s: %w", boardID, err)
	}
	if err := checkResponse(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func (c *Client) streamLoop(ctx context.Context, boardID string, resp *http.Response, out chan<- models.Snapshot) {
	defer close(out)
	log := c.log.With(zap.String("board_id", boardID))
	policy := backoff.WithContext(c.newBackOff(), ctx)

	for {
		err := c.consume(ctx, resp.Body, out, policy)
		resp.Body.Close()
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, errBoardGone) {
			log.Warn("stream ended by server", zap.Error(err))
			return
		}
		log.Warn("stream disconnected, reconnecting", zap.Error(err))

		err = backoff.RetryNotify(func() error {
			r, err := c.openStream(ctx, boardID)
			if err != nil {
				var apiErr *APIError
				if errors.As(err, &apiErr) && !apiErr.Temporary() {
					return backoff.Permanent(err)
				}
				return err
			}
			resp = r
			return nil
		}, policy, func(err error, wait time.Duration) {
			log.Debug("reconnect failed", zap.Error(err), zap.Duration("retry_in", wait))
		})
		if err != nil {
			if ctx.Err() == nil {
				log.Error("giving up on stream", zap.Error(err))
			}
			return
		}
	}
}

// consume forwards snapshots from one connection until it ends.
func (c *Client) consume(ctx context.Context, body io.Reader, out chan<- models.Snapshot, policy backoff.BackOff) error {
	return readEvents(body, func(event, data string) error {
		switch event {
		case "error":
			return fmt.Errorf("%w: %s", errBoardGone, data)
		case "snapshot", "":
		default:
			return nil
		}

		var snap models.Snapshot
		if err := json.Unmarshal([]byte(data), &snap); err != nil {
			c.log.Error("bad snapshot event", zap.Error(err))
			return nil
		}
		policy.Reset()

		select {
		case out <- snap:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// readEvents parses a text/event-stream body and calls fn once per event.
// Comment lines and unknown fields are skipped.
func readEvents(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 8<<20)

	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(data) > 0 {
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			event = value
		case "data":
			data = append(data, value)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.ErrUnexpectedEOF
}
