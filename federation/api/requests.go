package api

import (
	"errors"
	"fmt"

	"github.com/absmach/cohort/coordinator"
	"github.com/absmach/cohort/node"
	"github.com/absmach/cohort/pkg/fl"
	"github.com/absmach/cohort/pkg/payload"
	"github.com/absmach/cohort/task"
	apiutil "github.com/absmach/supermq/api/http/util"
)

var (
	errMissingSeeds       = errors.New("at least one seed address is required")
	errMissingCoordinator = errors.New("missing coordinator")
	errNodeMismatch       = errors.New("update node id does not match the submitting node")
	errRoundMismatch      = errors.New("update round does not match the submitted round")
	errTaskMismatch       = errors.New("task id does not match the envelope")
	errNegativeThreshold  = errors.New("required participants cannot be negative")
)

type emptyReq struct{}

func (emptyReq) validate() error {
	return nil
}

type discoverReq struct {
	NodeInfo node.Node `json:"nodeInfo"`
}

func (req discoverReq) validate() error {
	if req.NodeInfo.ID == "" {
		return apiutil.ErrMissingID
	}
	if !req.NodeInfo.Role.Valid() {
		return fmt.Errorf("invalid role %q", req.NodeInfo.Role)
	}

	return nil
}

type seedsReq struct {
	Seeds []string `json:"seeds"`
}

func (req seedsReq) validate() error {
	if len(req.Seeds) == 0 {
		return errMissingSeeds
	}

	return nil
}

type executeReq struct {
	TaskID string        `json:"taskId"`
	Task   task.Envelope `json:"task"`
}

func (req *executeReq) validate() error {
	if req.TaskID == "" {
		return apiutil.ErrMissingID
	}
	switch req.Task.ID {
	case "":
		req.Task.ID = req.TaskID
	case req.TaskID:
	default:
		return errTaskMismatch
	}

	return req.Task.Payload.Validate()
}

type dispatchReq struct {
	payload.Payload `json:",inline"`
}

func (req dispatchReq) validate() error {
	return req.Payload.Validate()
}

type trainReq struct {
	fl.TrainRequest `json:",inline"`
}

func (req trainReq) validate() error {
	if req.Coordinator.ID == "" {
		return errMissingCoordinator
	}

	return nil
}

type submitReq struct {
	coordinator.SubmitRequest `json:",inline"`
}

func (req *submitReq) validate() error {
	if req.NodeID == "" {
		return apiutil.ErrMissingID
	}
	u := &req.ModelUpdate
	switch u.NodeID {
	case "":
		u.NodeID = req.NodeID
	case req.NodeID:
	default:
		return errNodeMismatch
	}
	switch {
	case u.Round == 0:
		u.Round = req.Round
	case u.Round != req.Round:
		return errRoundMismatch
	}

	return u.Validate()
}

type roundReq struct {
	coordinator.RoundConfig `json:",inline"`
}

func (req roundReq) validate() error {
	if req.RequiredParticipants < 0 {
		return errNegativeThreshold
	}

	return nil
}

type aggregateReq struct {
	Method fl.Method `json:"method,omitempty"`
}

func (req aggregateReq) validate() error {
	if req.Method == "" {
		return nil
	}
	_, err := fl.NewAggregator(req.Method)

	return err
}
