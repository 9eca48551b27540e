package connection

import "context"

type State string

const (
	StateUnknown           State = "unknown"
	StateConnecting        State = "connecting"
	StateConnected         State = "connected"
	StateDisconnected      State = "disconnected"
	StateLoggedOut         State = "loggedOut"
	StateWaitingForPairing State = "waitingForPairing"
)

type StateChange struct {
	State State  `json:"state"`
	At    string `json:"at"`
}

// QRInfo is the pairing code currently waiting to be scanned.
type QRInfo struct {
	Data        string `json:"data"`
	DataURI     string `json:"dataUri"`
	GeneratedAt string `json:"generatedAt"`
}

type Status struct {
	State     State         `json:"state"`
	Since     string        `json:"since,omitempty"`
	SelfPhone string        `json:"selfPhone,omitempty"`
	QR        *QRInfo       `json:"qr,omitempty"`
	History   []StateChange `json:"history,omitempty"`
}

type IConnectionUsecase interface {
	Status(ctx context.Context) (Status, error)
	QRImage(ctx context.Context) (path string, err error)
	Reconnect(ctx context.Context) error
	Logout(ctx context.Context) error
}
