package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/pkg/api"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	"github.com/go-kit/kit/endpoint"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodySize = 32 << 20

// MakeHandler serves the node-to-node routes used by Transport peers and
// the operator routes used by the CLI and SDK.
func MakeHandler(svc federation.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerBefore(kithttp.PopulateRequestContext),
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	handle := func(e endpoint.Endpoint, dec kithttp.DecodeRequestFunc, op string) http.HandlerFunc {
		return otelhttp.NewHandler(kithttp.NewServer(e, dec, api.EncodeResponse, opts...), op).ServeHTTP
	}

	mux.Route("/node", func(r chi.Router) {
		r.Post("/discover", handle(handleDiscoveryEndpoint(svc), decodeBody[discoverReq], "handle-discovery"))
		r.Get("/info", handle(nodeInfoEndpoint(svc), decodeEmpty, "node-info"))
	})

	mux.Post(transport.RouteExecute, handle(executeTaskEndpoint(svc), decodeBody[*executeReq], "execute-task"))
	mux.Get(transport.RouteClusterStatus, handle(clusterStatusEndpoint(svc), decodeEmpty, "cluster-status"))
	mux.Get(transport.RouteHealth, handle(healthEndpoint(svc), decodeEmpty, "health"))
	mux.Get("/status", handle(statusEndpoint(svc), decodeEmpty, "status"))

	mux.Route("/nodes", func(r chi.Router) {
		r.Get("/", handle(listNodesEndpoint(svc), decodeEmpty, "list-nodes"))
		r.Post("/discover", handle(discoverEndpoint(svc), decodeBody[seedsReq], "discover"))
	})

	mux.Post("/tasks", handle(dispatchEndpoint(svc), decodeBody[dispatchReq], "dispatch-task"))

	mux.Route("/federated", func(r chi.Router) {
		r.Post("/train", handle(trainEndpoint(svc), decodeBody[trainReq], "handle-train"))
		r.Post("/submit", handle(submitEndpoint(svc), decodeBody[*submitReq], "submit-update"))
		r.Get("/model", handle(modelEndpoint(svc), decodeEmpty, "global-model"))
		r.Post("/aggregate", handle(aggregateEndpoint(svc), decodeOptionalBody[aggregateReq], "aggregate"))
		r.Route("/rounds", func(r chi.Router) {
			r.Post("/", handle(initiateRoundEndpoint(svc), decodeOptionalBody[roundReq], "initiate-round"))
			r.Get("/", handle(roundHistoryEndpoint(svc), decodeEmpty, "round-history"))
			r.Get("/current", handle(currentRoundEndpoint(svc), decodeEmpty, "current-round"))
			r.Delete("/current", handle(abandonRoundEndpoint(svc), decodeEmpty, "abandon-round"))
		})
	})

	mux.Get("/version", supermq.Health("cohort", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeEmpty(_ context.Context, _ *http.Request) (any, error) {
	return emptyReq{}, nil
}

// decodeBody reads a JSON or CBOR body into T.
func decodeBody[T any](_ context.Context, r *http.Request) (any, error) {
	var req T
	if err := readBody(r, &req, true); err != nil {
		return nil, err
	}

	return req, nil
}

// decodeOptionalBody is decodeBody for routes where every field has a
// default and the body may be omitted.
func decodeOptionalBody[T any](_ context.Context, r *http.Request) (any, error) {
	var req T
	if err := readBody(r, &req, false); err != nil {
		return nil, err
	}

	return req, nil
}

func readBody(r *http.Request, dst any, required bool) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return errors.Join(apiutil.ErrValidation, err)
	}
	if len(data) == 0 && !required {
		return nil
	}

	ct := r.Header.Get("Content-Type")
	if !strings.Contains(ct, transport.ContentTypeJSON) && !strings.Contains(ct, transport.ContentTypeCBOR) {
		return errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}
	if err := transport.CodecFor(ct).Unmarshal(data, dst); err != nil {
		return errors.Join(apiutil.ErrValidation, err)
	}

	return nil
}
