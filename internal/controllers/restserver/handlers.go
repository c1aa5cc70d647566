package restserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/silolab/avalanche/internal/aggregate"
	"github.com/silolab/avalanche/internal/distribution"
	"github.com/silolab/avalanche/internal/storage"
	"github.com/silolab/avalanche/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GroupsResponse lists the groups of one batch
type GroupsResponse struct {
	BatchID string             `json:"batch_id"`
	Groups  []*aggregate.Group `json:"groups"`
}

// DistributionResponse is the distribution table of one group
type DistributionResponse struct {
	BatchID string              `json:"batch_id"`
	Key     aggregate.GroupKey  `json:"key"`
	Table   *distribution.Table `json:"table"`
	Warning string              `json:"warning,omitempty"`
}

// GetLatestBatch handles requests for the most recent batch and its runs
func (h *Handlers) GetLatestBatch(w http.ResponseWriter, req *http.Request) {
	b, err := h.controller.store.LatestBatch(req.Context())
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	h.write(w, req, b)
}

// ListGroups handles requests for the group summaries of the latest batch
func (h *Handlers) ListGroups(w http.ResponseWriter, req *http.Request) {
	batchID, ok := h.latestBatchID(w, req)
	if !ok {
		return
	}

	groups, err := h.controller.store.ListGroups(req.Context(), batchID)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	if groups == nil {
		groups = []*aggregate.Group{}
	}
	h.write(w, req, GroupsResponse{BatchID: batchID, Groups: groups})
}

// GetGroup handles requests for one group including its pooled sizes
func (h *Handlers) GetGroup(w http.ResponseWriter, req *http.Request) {
	key, ok := h.groupKey(w, req)
	if !ok {
		return
	}
	batchID, ok := h.latestBatchID(w, req)
	if !ok {
		return
	}

	g, err := h.controller.store.Group(req.Context(), batchID, key)
	if err != nil {
		h.storeError(w, req, err)
		return
	}
	h.write(w, req, g)
}

// GetGroupDistribution rebuilds the size distribution of a group from its
// stored sizes. A positive bin_width query parameter selects fixed-width bins.
func (h *Handlers) GetGroupDistribution(w http.ResponseWriter, req *http.Request) {
	key, ok := h.groupKey(w, req)
	if !ok {
		return
	}

	binWidth := 0
	if v := req.URL.Query().Get("bin_width"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.formatter.WriteError(w, req, http.StatusBadRequest, "bin_width must be a positive integer")
			return
		}
		binWidth = n
	}

	batchID, ok := h.latestBatchID(w, req)
	if !ok {
		return
	}

	sizes, err := h.controller.store.GroupSizes(req.Context(), batchID, key)
	if err != nil {
		h.storeError(w, req, err)
		return
	}

	var table *distribution.Table
	if binWidth > 0 {
		table, err = distribution.FixedWidth(distribution.FromInts(sizes), float64(binWidth))
	} else {
		table, err = distribution.BuildSizes(sizes)
	}
	if errors.Is(err, distribution.ErrEmptyInput) {
		h.formatter.WriteError(w, req, http.StatusNotFound, "group "+key.String()+" has no avalanches")
		return
	}
	if err != nil {
		h.controller.logger.Errorf("error building distribution for %s: %v", key, err)
		h.formatter.WriteError(w, req, http.StatusInternalServerError, "error building distribution")
		return
	}

	resp := DistributionResponse{BatchID: batchID, Key: key, Table: table}
	if table.Warning != nil {
		h.controller.logger.Warnf("group %s: %v", key, table.Warning)
		resp.Warning = table.Warning.Error()
	}
	h.write(w, req, resp)
}

// GetHealth reports the health of the results store
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	health := h.controller.store.Health()
	status := http.StatusOK
	if health.Status == storage.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	if err := h.formatter.WriteStatus(w, req, status, health); err != nil {
		h.controller.logger.Errorf("error encoding health: %v", err)
	}
}

// groupKey parses the {key} path variable; "none" selects the group
// without parameters.
func (h *Handlers) groupKey(w http.ResponseWriter, req *http.Request) (aggregate.GroupKey, bool) {
	raw := mux.Vars(req)["key"]
	key := aggregate.ParseGroupKey(raw)
	if key.String() == "none" && raw != "none" {
		h.formatter.WriteError(w, req, http.StatusBadRequest, "invalid group key: "+raw)
		return aggregate.GroupKey{}, false
	}
	return key, true
}

func (h *Handlers) latestBatchID(w http.ResponseWriter, req *http.Request) (string, bool) {
	b, err := h.controller.store.LatestBatch(req.Context())
	if err != nil {
		h.storeError(w, req, err)
		return "", false
	}
	return b.ID, true
}

func (h *Handlers) storeError(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		h.formatter.WriteError(w, req, http.StatusNotFound, err.Error())
		return
	}
	h.controller.logger.Errorf("error reading results store: %v", err)
	h.formatter.WriteError(w, req, http.StatusInternalServerError, "error reading results store")
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data); err != nil {
		h.controller.logger.Errorf("error encoding response: %v", err)
	}
}
