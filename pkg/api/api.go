package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	kithttp "github.com/go-kit/kit/transport/http"
)

const ContentType = transport.ContentTypeJSON

// EncodeResponse writes the response in the codec the caller asked for
// through Accept, falling back to JSON. It needs kithttp.PopulateRequestContext
// among the server's before functions to see the header.
func EncodeResponse(ctx context.Context, w http.ResponseWriter, response any) error {
	accept, _ := ctx.Value(kithttp.ContextKeyRequestAccept).(string)
	codec := transport.CodecFor(accept)

	if ar, ok := response.(supermq.Response); ok {
		for k, v := range ar.Headers() {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", codec.ContentType())
		w.WriteHeader(ar.Code())

		if ar.Empty() {
			return nil
		}
	} else {
		w.Header().Set("Content-Type", codec.ContentType())
	}

	data, err := codec.Marshal(response)
	if err != nil {
		return err
	}
	_, err = w.Write(data)

	return err
}

type errorResponse struct {
	Error string `json:"error"`
}

// EncodeError writes {"error": message} with a status derived from err.
func EncodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(StatusCode(err))

	if encErr := json.NewEncoder(w).Encode(errorResponse{Error: err.Error()}); encErr != nil {
		slog.Warn("Failed to write error response", slog.String("error", err.Error()), slog.Any("encode_error", encErr))
	}
}

func StatusCode(err error) int {
	switch {
	case errors.Is(err, apiutil.ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, apiutil.ErrValidation),
		errors.Is(err, pkgerrors.ErrInvalidData):
		return http.StatusBadRequest
	case errors.Is(err, pkgerrors.ErrNotCoordinator):
		return http.StatusForbidden
	case errors.Is(err, pkgerrors.ErrRoundInProgress),
		errors.Is(err, pkgerrors.ErrNoActiveRound),
		errors.Is(err, pkgerrors.ErrStaleOrFutureRound),
		errors.Is(err, pkgerrors.ErrSelfDiscovery),
		errors.Is(err, pkgerrors.ErrAlreadyRunning),
		errors.Is(err, pkgerrors.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, pkgerrors.ErrInsufficientParticipants),
		errors.Is(err, pkgerrors.ErrInsufficientUpdates),
		errors.Is(err, pkgerrors.ErrDimensionMismatch),
		errors.Is(err, pkgerrors.ErrUnknownMethod):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pkgerrors.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, pkgerrors.ErrUnreachablePeer),
		errors.Is(err, pkgerrors.ErrRemote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
