package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/federation/api"
	"github.com/absmach/cohort/federation/mocks"
	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/pkg/transport"
	"github.com/absmach/cohort/registry"
	"github.com/absmach/cohort/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	client      *http.Client
	method      string
	url         string
	contentType string
	accept      string
	body        io.Reader
}

func (tr testRequest) make() (*http.Response, error) {
	req, err := http.NewRequest(tr.method, tr.url, tr.body)
	if err != nil {
		return nil, err
	}
	if tr.contentType != "" {
		req.Header.Set("Content-Type", tr.contentType)
	}
	if tr.accept != "" {
		req.Header.Set("Accept", tr.accept)
	}

	return tr.client.Do(req)
}

func newServer(t *testing.T) (*httptest.Server, *mocks.Service) {
	t.Helper()

	svc := new(mocks.Service)
	ts := httptest.NewServer(api.MakeHandler(svc, slog.Default(), "test"))
	t.Cleanup(ts.Close)

	return ts, svc
}

func toJSON(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)

	return strings.NewReader(string(data))
}

func TestHandleDiscovery(t *testing.T) {
	self := node.Node{ID: "coordinator", Role: node.CoordinatorRole, Address: node.Address{Host: "127.0.0.1", Port: 7000}}
	peer := node.Node{ID: "worker-1", Role: node.WorkerRole, Address: node.Address{Host: "127.0.0.1", Port: 7001}}

	cases := []struct {
		desc        string
		body        any
		contentType string
		svcErr      error
		status      int
	}{
		{desc: "register peer", body: registry.DiscoverRequest{NodeInfo: peer}, contentType: transport.ContentTypeJSON, status: http.StatusOK},
		{desc: "missing id", body: registry.DiscoverRequest{NodeInfo: node.Node{Role: node.WorkerRole}}, contentType: transport.ContentTypeJSON, status: http.StatusBadRequest},
		{desc: "invalid role", body: registry.DiscoverRequest{NodeInfo: node.Node{ID: "x", Role: "leader"}}, contentType: transport.ContentTypeJSON, status: http.StatusBadRequest},
		{desc: "unsupported content type", body: registry.DiscoverRequest{NodeInfo: peer}, contentType: "text/plain", status: http.StatusUnsupportedMediaType},
		{desc: "self discovery", body: registry.DiscoverRequest{NodeInfo: peer}, contentType: transport.ContentTypeJSON, svcErr: pkgerrors.ErrSelfDiscovery, status: http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("HandleDiscovery", mock.Anything, peer).Return(self, tc.svcErr)

			res, err := testRequest{
				client:      ts.Client(),
				method:      http.MethodPost,
				url:         ts.URL + transport.RouteDiscover,
				contentType: tc.contentType,
				body:        toJSON(t, tc.body),
			}.make()
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}
			var got registry.DiscoverResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Equal(t, "coordinator", got.NodeInfo.ID)
		})
	}
}

func TestExecuteTask(t *testing.T) {
	env := task.Envelope{ID: "t-1", Payload: payload.Opaque([]byte("job"))}
	cases := []struct {
		desc    string
		body    any
		result  task.Result
		svcErr  error
		status  int
		success bool
	}{
		{
			desc:    "success",
			body:    dispatcher.ExecuteRequest{TaskID: "t-1", Task: env},
			result:  task.Result{TaskID: "t-1", NodeID: "worker-1", Output: "done"},
			status:  http.StatusOK,
			success: true,
		},
		{
			desc:   "executor failure is reported in the body",
			body:   dispatcher.ExecuteRequest{TaskID: "t-1", Task: env},
			result: task.Result{TaskID: "t-1", NodeID: "worker-1"},
			svcErr: fmt.Errorf("exit code 1"),
			status: http.StatusOK,
		},
		{
			desc:   "mismatched task id",
			body:   dispatcher.ExecuteRequest{TaskID: "t-2", Task: env},
			status: http.StatusBadRequest,
		},
		{
			desc:   "missing task id",
			body:   dispatcher.ExecuteRequest{Task: env},
			status: http.StatusBadRequest,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			ts, svc := newServer(t)
			svc.On("ExecuteTask", mock.Anything, mock.MatchedBy(func(e task.Envelope) bool { return e.ID == "t-1" })).Return(tc.result, tc.svcErr)

			res, err := testRequest{
				client:      ts.Client(),
				method:      http.MethodPost,
				url:         ts.URL + transport.RouteExecute,
				contentType: transport.ContentTypeJSON,
				body:        toJSON(t, tc.body),
			}.make()
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}
			var got dispatcher.ExecuteResponse
			require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
			assert.Equal(t, tc.success, got.Success)
			assert.Equal(t, "worker-1", got.NodeID)
			if !tc.success {
				assert.Equal(t, tc.svcErr.Error(), got.Error)
			}
			svc.AssertNumberOfCalls(t, "ExecuteTask", 1)
		})
	}
}

func TestSubmitUpdateCBOR(t *testing.T) {
	ts, svc := newServer(t)

	req := coordinator.SubmitRequest{
		NodeID:      "worker-1",
		Round:       3,
		ModelUpdate: fl.ModelUpdate{Weights: []float64{0.5, 1.5}, SampleCount: 10},
	}
	match := mock.MatchedBy(func(u fl.ModelUpdate) bool {
		return u.NodeID == "worker-1" && u.Round == 3 && u.SampleCount == 10 && len(u.Weights) == 2
	})
	svc.On("SubmitUpdate", mock.Anything, match).Return(coordinator.Receipt{Success: true, Round: 3, ReceivedUpdates: 1, RequiredUpdates: 2}, nil)

	data, err := transport.CBOR.Marshal(req)
	require.NoError(t, err)

	res, err := testRequest{
		client:      ts.Client(),
		method:      http.MethodPost,
		url:         ts.URL + transport.RouteSubmit,
		contentType: transport.ContentTypeCBOR,
		accept:      transport.ContentTypeCBOR,
		body:        strings.NewReader(string(data)),
	}.make()
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, transport.ContentTypeCBOR, res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	var got coordinator.Receipt
	require.NoError(t, transport.CBOR.Unmarshal(body, &got))
	assert.Equal(t, 1, got.ReceivedUpdates)
	assert.Equal(t, 2, got.RequiredUpdates)
	svc.AssertExpectations(t)
}

func TestSubmitUpdateRejectsNonFinite(t *testing.T) {
	ts, svc := newServer(t)

	cases := []struct {
		desc   string
		update fl.ModelUpdate
	}{
		{desc: "nan weight", update: fl.ModelUpdate{Weights: []float64{math.NaN(), 1}}},
		{desc: "infinite bias", update: fl.ModelUpdate{Weights: []float64{1}, Biases: []float64{math.Inf(1)}}},
		{desc: "nan accuracy", update: fl.ModelUpdate{Weights: []float64{1}, Metrics: fl.Metrics{Accuracy: math.NaN()}}},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			data, err := transport.CBOR.Marshal(coordinator.SubmitRequest{NodeID: "worker-1", Round: 3, ModelUpdate: tc.update})
			require.NoError(t, err)

			res, err := testRequest{
				client:      ts.Client(),
				method:      http.MethodPost,
				url:         ts.URL + transport.RouteSubmit,
				contentType: transport.ContentTypeCBOR,
				body:        strings.NewReader(string(data)),
			}.make()
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		})
	}
	svc.AssertNotCalled(t, "SubmitUpdate", mock.Anything, mock.Anything)
}

func TestSubmitUpdateMismatch(t *testing.T) {
	ts, _ := newServer(t)

	req := coordinator.SubmitRequest{NodeID: "worker-1", Round: 3, ModelUpdate: fl.ModelUpdate{NodeID: "worker-2"}}
	res, err := testRequest{
		client:      ts.Client(),
		method:      http.MethodPost,
		url:         ts.URL + transport.RouteSubmit,
		contentType: transport.ContentTypeJSON,
		body:        toJSON(t, req),
	}.make()
	require.NoError(t, err)
	defer res.Body.Close()

	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRounds(t *testing.T) {
	ts, svc := newServer(t)

	round := fl.Round{Number: 4, Status: fl.Collecting, RequiredParticipants: 2, Participants: []string{"worker-1", "worker-2"}}
	svc.On("InitiateRound", mock.Anything, coordinator.RoundConfig{RequiredParticipants: 2}).
		Return(coordinator.Initiation{Round: round}, nil).Once()
	svc.On("InitiateRound", mock.Anything, coordinator.RoundConfig{}).
		Return(coordinator.Initiation{}, pkgerrors.ErrRoundInProgress).Once()
	svc.On("AbandonRound", mock.Anything).Return(round, nil)
	svc.On("RoundHistory", mock.Anything).Return([]fl.RoundRecord{{Round: 3, ParticipantCount: 2}}, nil)

	res, err := testRequest{
		client:      ts.Client(),
		method:      http.MethodPost,
		url:         ts.URL + "/federated/rounds",
		contentType: transport.ContentTypeJSON,
		body:        strings.NewReader(`{"required_participants":2}`),
	}.make()
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, "/federated/rounds/4", res.Header.Get("Location"))

	res, err = testRequest{client: ts.Client(), method: http.MethodPost, url: ts.URL + "/federated/rounds"}.make()
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, err = testRequest{
		client:      ts.Client(),
		method:      http.MethodPost,
		url:         ts.URL + "/federated/rounds",
		contentType: transport.ContentTypeJSON,
		body:        strings.NewReader(`{"required_participants":-1}`),
	}.make()
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = testRequest{client: ts.Client(), method: http.MethodDelete, url: ts.URL + "/federated/rounds/current"}.make()
	require.NoError(t, err)
	var abandoned fl.Round
	require.NoError(t, json.NewDecoder(res.Body).Decode(&abandoned))
	res.Body.Close()
	assert.Equal(t, uint64(4), abandoned.Number)

	res, err = testRequest{client: ts.Client(), method: http.MethodGet, url: ts.URL + "/federated/rounds"}.make()
	require.NoError(t, err)
	var history struct {
		Total  int              `json:"total"`
		Rounds []fl.RoundRecord `json:"rounds"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&history))
	res.Body.Close()
	assert.Equal(t, 1, history.Total)
	svc.AssertExpectations(t)
}

func TestAggregate(t *testing.T) {
	ts, svc := newServer(t)

	model := fl.GlobalModel{Round: 1, Weights: []float64{3, 3}, Method: fl.WeightedAveraging}
	svc.On("Aggregate", mock.Anything, fl.WeightedAveraging).Return(model, nil)
	svc.On("Aggregate", mock.Anything, fl.Method("")).Return(fl.GlobalModel{}, pkgerrors.ErrInsufficientUpdates)

	cases := []struct {
		desc   string
		body   string
		status int
	}{
		{desc: "weighted", body: `{"method":"weighted_averaging"}`, status: http.StatusOK},
		{desc: "default method without updates", status: http.StatusUnprocessableEntity},
		{desc: "unknown method", body: `{"method":"median"}`, status: http.StatusBadRequest},
		{desc: "malformed body", body: `{"method":`, status: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			req := testRequest{client: ts.Client(), method: http.MethodPost, url: ts.URL + "/federated/aggregate"}
			if tc.body != "" {
				req.contentType = transport.ContentTypeJSON
				req.body = strings.NewReader(tc.body)
			}
			res, err := req.make()
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
		})
	}
}

func TestReadRoutes(t *testing.T) {
	ts, svc := newServer(t)

	svc.On("NodeInfo", mock.Anything).Return(node.Node{ID: "worker-1", Role: node.WorkerRole}, nil)
	svc.On("ListPeers", mock.Anything).Return(node.NodePage{Total: 1, Nodes: []node.Node{{ID: "coordinator"}}}, nil)
	svc.On("Health", mock.Anything).Return(federation.Health{Status: "healthy", NodeID: "worker-1", Uptime: 12})
	svc.On("Status", mock.Anything).Return(federation.Status{NodeID: "worker-1", Running: true})
	svc.On("ClusterStatus", mock.Anything).Return(federation.ClusterStatus{Size: 2, Coordinator: "coordinator"})
	svc.On("GlobalModel", mock.Anything).Return(coordinator.ModelResponse{}, pkgerrors.ErrNotCoordinator)
	svc.On("CurrentRound", mock.Anything).Return(fl.Round{}, pkgerrors.ErrNoActiveRound)

	cases := []struct {
		route  string
		status int
		field  string
		want   any
	}{
		{route: transport.RouteNodeInfo, status: http.StatusOK, field: "id", want: "worker-1"},
		{route: "/nodes", status: http.StatusOK, field: "total", want: float64(1)},
		{route: transport.RouteHealth, status: http.StatusOK, field: "nodeId", want: "worker-1"},
		{route: "/status", status: http.StatusOK, field: "running", want: true},
		{route: transport.RouteClusterStatus, status: http.StatusOK, field: "coordinator", want: "coordinator"},
		{route: transport.RouteModel, status: http.StatusForbidden, field: "error", want: pkgerrors.ErrNotCoordinator.Error()},
		{route: "/federated/rounds/current", status: http.StatusConflict, field: "error", want: pkgerrors.ErrNoActiveRound.Error()},
	}

	for _, tc := range cases {
		t.Run(tc.route, func(t *testing.T) {
			res, err := testRequest{client: ts.Client(), method: http.MethodGet, url: ts.URL + tc.route}.make()
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			var body map[string]any
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.Equal(t, tc.want, body[tc.field])
		})
	}
}

// listen reserves a loopback port so the node can advertise its address
// before the handler exists.
func listen(t *testing.T) (*httptest.Server, node.Address) {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	host, port, err := net.SplitHostPort(ts.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return ts, node.Address{Host: host, Port: p}
}

func startNode(t *testing.T, id string, role node.Role, seeds []string, exec dispatcher.Executor) (federation.Service, node.Address) {
	t.Helper()

	ts, addr := listen(t)
	tr := transport.NewHTTP(slog.Default())
	cfg := federation.Config{
		Self:          node.Node{ID: id, Name: id, Role: role, Address: addr},
		Seeds:         seeds,
		Registry:      registry.Config{HeartbeatInterval: time.Hour, CallTimeout: 2 * time.Second},
		Dispatcher:    dispatcher.Config{TaskTimeout: 2 * time.Second},
		Coordinator:   coordinator.Config{TrainTimeout: 2 * time.Second},
		SubmitTimeout: 2 * time.Second,
	}
	svc, err := federation.New(cfg, tr, exec, federation.ModelTrainer(tr, 2*time.Second), nil, nil, slog.Default())
	require.NoError(t, err)

	ts.Config.Handler = api.MakeHandler(svc, slog.Default(), id)
	ts.Start()
	t.Cleanup(ts.Close)

	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		assert.NoError(t, svc.Stop(context.Background()))
	})

	return svc, addr
}

func TestFederationOverHTTP(t *testing.T) {
	busy := dispatcher.ExecutorFunc(func(_ context.Context, t task.Envelope) (any, error) {
		return "coordinator:" + string(t.Payload.Data), nil
	})
	idle := dispatcher.ExecutorFunc(func(_ context.Context, t task.Envelope) (any, error) {
		return "worker:" + string(t.Payload.Data), nil
	})

	coord, caddr := startNode(t, "coordinator", node.CoordinatorRole, nil, busy)
	worker, _ := startNode(t, "worker-1", node.WorkerRole, []string{caddr.String()}, idle)
	ctx := context.Background()

	page, err := coord.ListPeers(ctx)
	require.NoError(t, err)
	require.Len(t, page.Nodes, 1)
	assert.Equal(t, "worker-1", page.Nodes[0].ID)

	res, err := worker.Dispatch(ctx, payload.Opaque([]byte("job")))
	require.NoError(t, err)
	assert.True(t, res.Local)

	init, err := coord.InitiateRound(ctx, coordinator.RoundConfig{RequiredParticipants: 1, Config: map[string]any{"dimensions": 3}})
	require.NoError(t, err)
	require.Len(t, init.Outcomes, 1)
	assert.True(t, init.Outcomes[0].Acked)

	require.Eventually(t, func() bool {
		round, err := coord.CurrentRound(ctx)
		return err == nil && len(round.Updates) == 1
	}, 5*time.Second, 20*time.Millisecond)

	model, err := coord.Aggregate(ctx, fl.FederatedAveraging)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, model.Weights)
	assert.Equal(t, 1, model.ParticipantCount)

	got, err := coord.GlobalModel(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Model)
	assert.Equal(t, init.Round.Number, got.Model.Round)
}
