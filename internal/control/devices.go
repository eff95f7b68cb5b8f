package control

import (
	"errors"
	"net/http"

	"github.com/MrWong99/parrot/pkg/audio/device"
)

type deviceList struct {
	Devices  []string `json:"devices"`
	Selected *string  `json:"selected"`
}

type deviceName struct {
	Name *string `json:"name"`
}

type selectDevice struct {
	Name string `json:"name"`
}

// deviceOps binds the {kind} path value to the input or output half of the
// device manager.
type deviceOps struct {
	list     func() ([]string, error)
	def      func() (string, error)
	selected func() string
	set      func(string) error
}

func (s *Server) deviceOps(w http.ResponseWriter, r *http.Request) (deviceOps, bool) {
	switch r.PathValue("kind") {
	case "input":
		return deviceOps{s.devices.InputDevices, s.devices.Host().DefaultInput, s.devices.SelectedInput, s.devices.SetInput}, true
	case "output":
		return deviceOps{s.devices.OutputDevices, s.devices.Host().DefaultOutput, s.devices.SelectedOutput, s.devices.SetOutput}, true
	}
	http.NotFound(w, r)
	return deviceOps{}, false
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ops, ok := s.deviceOps(w, r)
	if !ok {
		return
	}
	names, err := ops.list()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	res := deviceList{Devices: names}
	if res.Devices == nil {
		res.Devices = []string{}
	}
	if sel := ops.selected(); sel != "" {
		res.Selected = &sel
	}
	writeJSON(w, http.StatusOK, res)
}

// handleDefaultDevice answers the host default, or null when the host has
// none.
func (s *Server) handleDefaultDevice(w http.ResponseWriter, r *http.Request) {
	ops, ok := s.deviceOps(w, r)
	if !ok {
		return
	}
	name, err := ops.def()
	if err != nil || name == "" {
		writeJSON(w, http.StatusOK, deviceName{})
		return
	}
	writeJSON(w, http.StatusOK, deviceName{Name: &name})
}

// handleSelectDevice applies from the next pipeline start.
func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	ops, ok := s.deviceOps(w, r)
	if !ok {
		return
	}
	var body selectDevice
	if !decode(w, r, &body) {
		return
	}
	if err := ops.set(body.Name); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, device.ErrUnknownDevice) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
