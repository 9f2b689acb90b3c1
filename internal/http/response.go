package http

import "bloomd/pkg/filter"

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates the request was served.
	StatusSuccess Status = "success"

	// StatusError indicates the request failed.
	StatusError Status = "error"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Status  Status      `json:"status,omitempty"`
	Filters []string    `json:"filters,omitempty"`
	Filter  *FilterInfo `json:"filter,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// FilterInfo mirrors the info command of the line protocol.
type FilterInfo struct {
	Name        string  `json:"name"`
	State       string  `json:"state"`
	InMemory    bool    `json:"in_memory"`
	Probability float64 `json:"probability"`
	Capacity    uint64  `json:"capacity"`
	Size        uint64  `json:"size"`
	Storage     uint64  `json:"storage"`
	Generations int     `json:"generations"`
	Checks      uint64  `json:"checks"`
	CheckHits   uint64  `json:"check_hits"`
	CheckMisses uint64  `json:"check_misses"`
	Sets        uint64  `json:"sets"`
	SetHits     uint64  `json:"set_hits"`
	SetMisses   uint64  `json:"set_misses"`
	PageIns     uint64  `json:"page_ins"`
	PageOuts    uint64  `json:"page_outs"`

	FillRatio         float64 `json:"fill_ratio"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

func newFilterInfo(st filter.Stats) *FilterInfo {
	return &FilterInfo{
		Name:        st.Name,
		State:       st.State.String(),
		InMemory:    st.InMemory,
		Probability: st.Probability,
		Capacity:    st.Capacity,
		Size:        st.Size,
		Storage:     st.Bytes,
		Generations: st.Generations,
		Checks:      st.Checks(),
		CheckHits:   st.CheckHits,
		CheckMisses: st.CheckMisses,
		Sets:        st.Sets(),
		SetHits:     st.SetHits,
		SetMisses:   st.SetMisses,
		PageIns:     st.PageIns,
		PageOuts:    st.PageOuts,

		FillRatio:         st.FillRatio,
		FalsePositiveRate: st.FalsePositiveRate,
	}
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewFiltersResponse(names []string) Response {
	if names == nil {
		names = []string{}
	}
	return Response{Status: StatusSuccess, Filters: names}
}

func NewFilterResponse(st filter.Stats) Response {
	return Response{Status: StatusSuccess, Filter: newFilterInfo(st)}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}
