package sdk

import (
	"net/http"

	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
)

const (
	nodesEndpoint   = "/nodes"
	nodeEndpoint    = "/node/info"
	healthEndpoint  = "/health"
	statusEndpoint  = "/status"
	clusterEndpoint = "/cluster/status"
)

func (sdk *cohortSDK) NodeInfo() (node.Node, error) {
	return call[node.Node](sdk, http.MethodGet, nodeEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) ListNodes() (node.NodePage, error) {
	return call[node.NodePage](sdk, http.MethodGet, nodesEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) Discover(seeds []string) ([]DiscoverOutcome, error) {
	req := struct {
		Seeds []string `json:"seeds"`
	}{Seeds: seeds}

	res, err := call[struct {
		Outcomes []DiscoverOutcome `json:"outcomes"`
	}](sdk, http.MethodPost, nodesEndpoint+"/discover", req, http.StatusOK)
	if err != nil {
		return nil, err
	}

	return res.Outcomes, nil
}

func (sdk *cohortSDK) Health() (federation.Health, error) {
	return call[federation.Health](sdk, http.MethodGet, healthEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) Status() (federation.Status, error) {
	return call[federation.Status](sdk, http.MethodGet, statusEndpoint, nil, http.StatusOK)
}

func (sdk *cohortSDK) ClusterStatus() (federation.ClusterStatus, error) {
	return call[federation.ClusterStatus](sdk, http.MethodGet, clusterEndpoint, nil, http.StatusOK)
}
