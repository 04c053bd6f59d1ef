package model

// SenderRequestData is the request tag of a sender-protocol batch.
const SenderRequestData = "sender data"

// SenderItem is one history sample pushed to the monitoring backend.
type SenderItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock,omitempty"`
}

// SenderRequest is the JSON body framed by the sender protocol.
type SenderRequest struct {
	Request string       `json:"request"`
	Data    []SenderItem `json:"data"`
}
