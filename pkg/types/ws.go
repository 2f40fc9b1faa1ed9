package types

import "encoding/json"

// WSMessageType identifies a frame on the worker websocket.
type WSMessageType string

const (
	WSMsgRegister    WSMessageType = "register"
	WSMsgRegisterAck WSMessageType = "register_ack"
	// WSMsgProtocol carries one encoded protocol Message.
	WSMsgProtocol WSMessageType = "protocol"
)

// WSMessage is the envelope of every websocket frame.
type WSMessage struct {
	Type WSMessageType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WorkerRegisterRequest is the first frame a worker sends.
// Rank 0 lets the coordinator pick the rank.
type WorkerRegisterRequest struct {
	Name string `json:"name"`
	Rank int    `json:"rank,omitempty"`
}

// WorkerRegisterResponse answers a registration.
type WorkerRegisterResponse struct {
	Accepted bool   `json:"accepted"`
	Rank     int    `json:"rank,omitempty"`
	Size     int    `json:"size,omitempty"`
	RunID    string `json:"run_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WorkerWSPath is the coordinator route workers connect to.
const WorkerWSPath = "/api/v1/worker-ws"
