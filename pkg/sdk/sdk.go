// Package sdk is a Go client for the operator routes of a cohort node.
package sdk

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	pkgerrors "github.com/absmach/cohort/pkg/errors"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/task"
)

const CTJSON string = "application/json"

var ErrUnexpectedStatus = errors.New("unexpected response code")

type SDK interface {
	// NodeInfo returns the node the SDK talks to.
	//
	// example:
	//  n, _ := sdk.NodeInfo()
	//  fmt.Println(n.ID, n.Role)
	NodeInfo() (node.Node, error)

	// ListNodes lists the peers the node currently knows.
	//
	// example:
	//  page, _ := sdk.ListNodes()
	//  fmt.Println(page.Total)
	ListNodes() (node.NodePage, error)

	// Discover contacts the given seed addresses and reports each outcome.
	//
	// example:
	//  outcomes, _ := sdk.Discover([]string{"10.0.0.2:7000"})
	Discover(seeds []string) ([]DiscoverOutcome, error)

	Health() (federation.Health, error)
	Status() (federation.Status, error)
	ClusterStatus() (federation.ClusterStatus, error)

	// Dispatch submits a payload to the cluster and waits for its result.
	//
	// example:
	//  res, _ := sdk.Dispatch(payload.Opaque([]byte("job")))
	//  fmt.Println(res.NodeID, res.Output)
	Dispatch(p payload.Payload) (task.Result, error)

	// StartRound opens a training round on the coordinator.
	//
	// example:
	//  init, _ := sdk.StartRound(coordinator.RoundConfig{RequiredParticipants: 2})
	//  fmt.Println(init.Round.Number)
	StartRound(cfg coordinator.RoundConfig) (coordinator.Initiation, error)
	CurrentRound() (fl.Round, error)
	AbandonRound() (fl.Round, error)
	RoundHistory() (RoundHistory, error)

	// Aggregate closes the round. An empty method uses the node's default.
	Aggregate(method fl.Method) (fl.GlobalModel, error)
	GlobalModel() (coordinator.ModelResponse, error)
	SubmitUpdate(update fl.ModelUpdate) (coordinator.Receipt, error)
}

type DiscoverOutcome struct {
	Address string `json:"address"`
	NodeID  string `json:"node_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type RoundHistory struct {
	Total  int              `json:"total"`
	Rounds []fl.RoundRecord `json:"rounds"`
}

type cohortSDK struct {
	nodeURL string
	client  *http.Client
}

type Config struct {
	NodeURL         string
	TLSVerification bool
	Timeout         time.Duration
}

func NewSDK(cfg Config) SDK {
	return &cohortSDK{
		nodeURL: strings.TrimSuffix(cfg.NodeURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			},
		},
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func (sdk *cohortSDK) processRequest(method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequest(method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	if data != nil {
		req.Header.Add("Content-Type", CTJSON)
	}
	req.Header.Add("Accept", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		var eb errorBody
		_ = json.Unmarshal(body, &eb)
		err := fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.StatusCode, eb.Error)
		if known := pkgerrors.FromMessage(eb.Error); known != nil {
			err = errors.Join(known, err)
		}

		return []byte{}, err
	}

	return body, nil
}

// call sends req as JSON and decodes the reply into a fresh T.
func call[T any](sdk *cohortSDK, method, endpoint string, req any, expectedRespCode int) (T, error) {
	var out T

	var data []byte
	if req != nil {
		var err error
		if data, err = json.Marshal(req); err != nil {
			return out, err
		}
	}

	body, err := sdk.processRequest(method, sdk.nodeURL+endpoint, data, expectedRespCode)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, err
	}

	return out, nil
}
