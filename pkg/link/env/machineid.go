package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID salts the machine ID so it isn't exposed in topics.
const AppID = "hostlink"

// MachineID retrieves the unique ID identifying the machine.
// It falls back to the host name when the machine ID is unavailable.
func MachineID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.V(2).Infof("machine id unavailable: %v", err)
	if name, err := os.Hostname(); err == nil {
		return name
	}
	return "hostlink"
}
