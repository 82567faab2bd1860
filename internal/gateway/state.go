package gateway

type State int32

const (
	StateUninstalled State = iota
	StateInstalling
	StateActive
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
