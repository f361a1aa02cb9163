package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/agvfleet/internal/agv"
	"github.com/autopeer-io/agvfleet/internal/fleet"
	"github.com/autopeer-io/agvfleet/internal/landmark"
)

// CommandRequest is the body of POST /api/v1/vehicles/{id}/commands.
//
//	{"kind":"move","target":42}
//	{"kind":"action","code":1} or {"kind":"action","name":"lifter-up"}
//	{"kind":"stop-action"}
//	{"kind":"traffic-pass"} or {"kind":"traffic-pass","landmark":12}
//	{"kind":"speed","speed":-50}
//	{"kind":"status","status":"sleep"}
type CommandRequest struct {
	Kind     string      `json:"kind"`
	Target   landmark.ID `json:"target,omitempty"`
	Code     uint8       `json:"code,omitempty"`
	Name     string      `json:"name,omitempty"`
	Landmark landmark.ID `json:"landmark,omitempty"`
	Speed    int         `json:"speed,omitempty"`
	Status   string      `json:"status,omitempty"`
}

type CommandResponse struct {
	Command string     `json:"command"`
	Result  agv.Result `json:"result"`
	Error   string     `json:"error,omitempty"`
}

// LandmarkRequest is the body of POST /api/v1/landmarks/{id}/{op}. Clear needs none.
type LandmarkRequest struct {
	Token landmark.Token `json:"token"`
}

type LandmarkResponse struct {
	OK       bool              `json:"ok"`
	Landmark landmark.Landmark `json:"landmark"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func vehicleID(r *http.Request) (uint16, error) {
	n, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 16)
	return uint16(n), err
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Vehicles())
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	id, err := vehicleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.fleet.Vehicle(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) postCommand(w http.ResponseWriter, r *http.Request) {
	id, err := vehicleID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap, err := s.fleet.Vehicle(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmd, err := req.command(snap.Capability)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var res agv.Result
	if cmd.Kind == agv.KindTrafficPass && req.Landmark.Valid() {
		res, err = s.fleet.PassTraffic(id, req.Landmark)
	} else {
		res, err = s.fleet.Submit(id, cmd)
	}

	resp := CommandResponse{Command: cmd.String(), Result: res}
	switch {
	case errors.Is(err, fleet.ErrLandmarkBusy):
		resp.Error = err.Error()
		writeJSON(w, http.StatusConflict, resp)
	case err != nil:
		writeError(w, http.StatusNotFound, err)
	case res != agv.Success:
		resp.Error = res.Err().Error()
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (req CommandRequest) command(c agv.Capability) (agv.Command, error) {
	switch req.Kind {
	case "move":
		return agv.Move(req.Target), nil
	case "action":
		if req.Name == "" {
			return agv.Action(req.Code), nil
		}
		code, ok := agv.ActionByName(c, req.Name)
		if !ok {
			return agv.Command{}, fmt.Errorf("action %q is not available on a %s vehicle", req.Name, c)
		}
		return agv.Action(code), nil
	case "stop-action":
		return agv.StopAction(), nil
	case "traffic-pass":
		return agv.TrafficPass(), nil
	case "speed":
		return agv.SetSpeed(req.Speed), nil
	case "status":
		sc, ok := agv.ParseStatusCommand(req.Status)
		if !ok {
			return agv.Command{}, fmt.Errorf("unknown status command %q", req.Status)
		}
		return agv.StatusControl(sc), nil
	}
	return agv.Command{}, fmt.Errorf("unknown command kind %q", req.Kind)
}

func landmarkID(r *http.Request) (landmark.ID, error) {
	id, err := landmark.ParseID(mux.Vars(r)["id"])
	if err == nil && !id.Valid() {
		err = errors.New("landmark 0 does not exist")
	}
	return id, err
}

func (s *Server) listLandmarks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Landmarks().List())
}

func (s *Server) getLandmark(w http.ResponseWriter, r *http.Request) {
	id, err := landmarkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.fleet.Landmarks().Get(id))
}

// postLandmark applies a registry operation. A refused operation answers 409 with the current
// state of the landmark.
func (s *Server) postLandmark(w http.ResponseWriter, r *http.Request) {
	id, err := landmarkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req LandmarkRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	reg := s.fleet.Landmarks()
	var ok bool
	switch op := mux.Vars(r)["op"]; op {
	case landmark.OpLock:
		ok = reg.Lock(id, req.Token)
	case landmark.OpFree:
		ok = reg.Free(id, req.Token)
	case landmark.OpPeerLock:
		ok = reg.PeerLock(id, req.Token)
	case landmark.OpCancel:
		ok = reg.Cancel(id, req.Token)
	case landmark.OpClear:
		reg.Clear(id)
		ok = true
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown landmark operation %q", op))
		return
	}

	code := http.StatusOK
	if !ok {
		code = http.StatusConflict
	}
	writeJSON(w, code, LandmarkResponse{OK: ok, Landmark: reg.Get(id)})
}
