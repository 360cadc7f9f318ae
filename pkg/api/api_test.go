package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/absmach/cohort/pkg/api"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/transport"
	apiutil "github.com/absmach/supermq/api/http/util"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{err: errors.Join(apiutil.ErrValidation, apiutil.ErrMissingID), code: http.StatusBadRequest},
		{err: errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType), code: http.StatusUnsupportedMediaType},
		{err: fmt.Errorf("%w: bad", pkgerrors.ErrInvalidData), code: http.StatusBadRequest},
		{err: pkgerrors.ErrNotCoordinator, code: http.StatusForbidden},
		{err: pkgerrors.ErrRoundInProgress, code: http.StatusConflict},
		{err: pkgerrors.ErrStaleOrFutureRound, code: http.StatusConflict},
		{err: pkgerrors.ErrNoActiveRound, code: http.StatusConflict},
		{err: pkgerrors.ErrInsufficientParticipants, code: http.StatusUnprocessableEntity},
		{err: pkgerrors.ErrInsufficientUpdates, code: http.StatusUnprocessableEntity},
		{err: pkgerrors.ErrDimensionMismatch, code: http.StatusUnprocessableEntity},
		{err: errors.Join(pkgerrors.ErrTimeout, pkgerrors.ErrUnreachablePeer), code: http.StatusGatewayTimeout},
		{err: pkgerrors.ErrUnreachablePeer, code: http.StatusBadGateway},
		{err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			api.EncodeError(context.Background(), tc.err, rec)

			assert.Equal(t, tc.code, rec.Code)
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.err.Error(), body["error"])
		})
	}
}

// failingWriter counts status writes and rejects every body write.
type failingWriter struct {
	header  http.Header
	written []int
}

func (w *failingWriter) Header() http.Header { return w.header }

func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func (w *failingWriter) WriteHeader(code int) { w.written = append(w.written, code) }

func TestEncodeErrorWritesStatusOnce(t *testing.T) {
	w := &failingWriter{header: http.Header{}}
	api.EncodeError(context.Background(), pkgerrors.ErrNoActiveRound, w)

	assert.Equal(t, []int{http.StatusConflict}, w.written)
	assert.Equal(t, api.ContentType, w.header.Get("Content-Type"))
}

type created struct {
	Round uint64 `json:"round"`
}

func (created) Code() int                  { return http.StatusCreated }
func (created) Headers() map[string]string { return map[string]string{"Location": "/federated/rounds/1"} }
func (created) Empty() bool                { return false }

func TestEncodeResponseNegotiatesCodec(t *testing.T) {
	cases := []struct {
		desc   string
		accept string
		want   string
	}{
		{desc: "default json", want: transport.ContentTypeJSON},
		{desc: "json", accept: transport.ContentTypeJSON, want: transport.ContentTypeJSON},
		{desc: "cbor", accept: transport.ContentTypeCBOR, want: transport.ContentTypeCBOR},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := context.WithValue(context.Background(), kithttp.ContextKeyRequestAccept, tc.accept)
			rec := httptest.NewRecorder()

			require.NoError(t, api.EncodeResponse(ctx, rec, created{Round: 1}))
			assert.Equal(t, http.StatusCreated, rec.Code)
			assert.Equal(t, tc.want, rec.Header().Get("Content-Type"))
			assert.Equal(t, "/federated/rounds/1", rec.Header().Get("Location"))

			var got created
			require.NoError(t, transport.CodecFor(tc.want).Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, uint64(1), got.Round)
		})
	}
}
