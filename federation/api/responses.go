package api

import (
	"fmt"
	"net/http"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/dispatcher"
	"github.com/absmach/cohort/federation"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/task"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response = (*nodeResponse)(nil)
	_ supermq.Response = (*discoverResponse)(nil)
	_ supermq.Response = (*listNodesResponse)(nil)
	_ supermq.Response = (*outcomesResponse)(nil)
	_ supermq.Response = (*executeResponse)(nil)
	_ supermq.Response = (*resultResponse)(nil)
	_ supermq.Response = (*healthResponse)(nil)
	_ supermq.Response = (*statusResponse)(nil)
	_ supermq.Response = (*clusterStatusResponse)(nil)
	_ supermq.Response = (*trainResponse)(nil)
	_ supermq.Response = (*receiptResponse)(nil)
	_ supermq.Response = (*modelResponse)(nil)
	_ supermq.Response = (*initiationResponse)(nil)
	_ supermq.Response = (*roundResponse)(nil)
	_ supermq.Response = (*historyResponse)(nil)
	_ supermq.Response = (*globalModelResponse)(nil)
)

// ok gives a response a plain 200 with a body.
type ok struct{}

func (ok) Code() int {
	return http.StatusOK
}

func (ok) Headers() map[string]string {
	return map[string]string{}
}

func (ok) Empty() bool {
	return false
}

type nodeResponse struct {
	ok
	node.Node
}

type discoverResponse struct {
	ok
	NodeInfo node.Node `json:"nodeInfo"`
}

type listNodesResponse struct {
	ok
	node.NodePage
}

type outcome struct {
	Address string `json:"address"`
	NodeID  string `json:"node_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type outcomesResponse struct {
	ok
	Outcomes []outcome `json:"outcomes"`
}

type executeResponse struct {
	ok
	dispatcher.ExecuteResponse
}

type resultResponse struct {
	ok
	task.Result
}

type healthResponse struct {
	ok
	federation.Health
}

type statusResponse struct {
	ok
	federation.Status
}

type clusterStatusResponse struct {
	ok
	federation.ClusterStatus
}

type trainResponse struct {
	ok
	coordinator.TrainAck
}

type receiptResponse struct {
	ok
	coordinator.Receipt
}

type modelResponse struct {
	ok
	coordinator.ModelResponse
}

type initiationResponse struct {
	ok
	coordinator.Initiation
}

func (res initiationResponse) Code() int {
	return http.StatusCreated
}

func (res initiationResponse) Headers() map[string]string {
	return map[string]string{
		"Location": fmt.Sprintf("/federated/rounds/%d", res.Round.Number),
	}
}

type roundResponse struct {
	ok
	fl.Round
}

type historyResponse struct {
	ok
	Total  int              `json:"total"`
	Rounds []fl.RoundRecord `json:"rounds"`
}

type globalModelResponse struct {
	ok
	fl.GlobalModel
}
