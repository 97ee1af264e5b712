package dispatcher

import (
	"encoding/json"

	"github.com/dimchat/station/internal/envelope"
	"github.com/dimchat/station/internal/id"
)

// receiptBody is the content of a ReceiptCommand.
type receiptBody struct {
	Command  string `json:"command"`
	Status   string `json:"status"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Time     uint64 `json:"time"`
	Group    string `json:"group,omitempty"`
}

const (
	statusDelivering = "delivering"
	statusRejected   = "rejected"
	statusFailed     = "failed"
)

// newReceipt builds the wire bytes of a station-originated
// ReceiptCommand addressed back to env.Sender, reporting on the
// delivery of env.
func newReceipt(station id.ID, env envelope.Envelope, status string) ([]byte, error) {
	body := receiptBody{
		Command:  "receipt",
		Status:   status,
		Sender:   env.Sender.String(),
		Receiver: env.Receiver.String(),
		Time:     env.Time,
	}
	if env.HasGroup() {
		body.Group = env.Group.String()
	}
	ciphertext, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp := envelope.Envelope{
		Sender:     station,
		Receiver:   env.Sender,
		Time:       env.Time,
		Ciphertext: ciphertext,
	}
	return envelope.Encode(resp)
}
