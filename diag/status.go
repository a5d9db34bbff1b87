package diag

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"lautenbacher.net/ppmswitch/ppm"
	u "lautenbacher.net/ppmswitch/util"
)

type statusMsg struct {
	Phase      string          `json:"phase"`
	Collected  int             `json:"collected"`
	Required   int             `json:"required"`
	Neutral    ppm.PulseSample `json:"neutral,omitempty"`
	Forward    ppm.PulseSample `json:"forwardThreshold,omitempty"`
	Backward   ppm.PulseSample `json:"backwardThreshold,omitempty"`
	Latch      string          `json:"latch"`
	Asserted   string          `json:"asserted"`
	ForwardOn  bool            `json:"forwardOn"`
	BackwardOn bool            `json:"backwardOn"`
	LastSample ppm.PulseSample `json:"lastSample"`
	Samples    uint64          `json:"samples"`
	Dropped    uint64          `json:"dropped"`
}

func newStatusMsg(st ppm.Status) statusMsg {
	return statusMsg{
		Phase:      st.Phase.String(),
		Collected:  st.Collected,
		Required:   st.Required,
		Neutral:    st.Thresholds.Neutral,
		Forward:    st.Thresholds.Forward,
		Backward:   st.Thresholds.Backward,
		Latch:      st.State.String(),
		Asserted:   st.Asserted.String(),
		ForwardOn:  st.Forward,
		BackwardOn: st.Backward,
		LastSample: st.LastSample,
		Samples:    st.Samples,
		Dropped:    st.Dropped,
	}
}

// StatusHandler serves the latest switch status as JSON.
func StatusHandler(status *u.Latest[ppm.Status]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(newStatusMsg(status.Value())); err != nil {
			slog.Error("Failed to encode status", "error", err)
		}
	}
}
