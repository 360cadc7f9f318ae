package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxReplySize = 32 << 20

type httpTransport struct {
	client *http.Client
	codec  Codec
	scheme string
	logger *slog.Logger
}

type Option func(*httpTransport)

// WithCodec sets the codec used for request bodies. Replies are decoded
// according to their Content-Type.
func WithCodec(c Codec) Option {
	return func(t *httpTransport) {
		t.codec = c
	}
}

func WithClient(c *http.Client) Option {
	return func(t *httpTransport) {
		t.client = c
	}
}

func NewHTTP(logger *slog.Logger, opts ...Option) Transport {
	t := &httpTransport{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		codec:  JSON,
		scheme: "http",
		logger: logger,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

func (t *httpTransport) Call(ctx context.Context, address, route string, req, resp any, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := http.MethodGet
	var body io.Reader
	if req != nil {
		data, err := t.codec.Marshal(req)
		if err != nil {
			return errors.Join(pkgerrors.ErrInvalidData, err)
		}
		method = http.MethodPost
		body = bytes.NewReader(data)
	}

	url := t.scheme + "://" + address + route
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Join(pkgerrors.ErrUnreachablePeer, err)
	}
	if req != nil {
		r.Header.Set("Content-Type", t.codec.ContentType())
	}
	r.Header.Set("Accept", t.codec.ContentType())

	res, err := t.client.Do(r)
	if err != nil {
		return classify(ctx, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxReplySize))
	if err != nil {
		return classify(ctx, err)
	}

	codec := CodecFor(res.Header.Get("Content-Type"))
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return remoteError(codec, res.StatusCode, data)
	}

	if resp == nil || len(data) == 0 {
		return nil
	}
	if err := codec.Unmarshal(data, resp); err != nil {
		t.logger.Warn("failed to decode reply",
			slog.String("address", address),
			slog.String("route", route),
			slog.Any("error", err),
		)

		return errors.Join(pkgerrors.ErrInvalidData, err)
	}

	return nil
}

func (t *httpTransport) Close() error {
	t.client.CloseIdleConnections()

	return nil
}

func classify(ctx context.Context, err error) error {
	var nerr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return errors.Join(pkgerrors.ErrTimeout, pkgerrors.ErrUnreachablePeer, err)
	}

	return errors.Join(pkgerrors.ErrUnreachablePeer, err)
}

type errorReply struct {
	Error string `json:"error"`
}

func remoteError(codec Codec, status int, data []byte) error {
	var reply errorReply
	msg := strings.TrimSpace(string(data))
	if err := codec.Unmarshal(data, &reply); err == nil && reply.Error != "" {
		msg = reply.Error
	}

	err := fmt.Errorf("%w: status %d: %s", pkgerrors.ErrRemote, status, msg)
	if known := pkgerrors.FromMessage(msg); known != nil {
		return errors.Join(known, err)
	}

	return err
}
