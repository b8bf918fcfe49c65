package bridge

import (
	"github.com/bytedance/sonic"
)

const helloType = "bridge_hello"

// helloMessage is the first message sent on every new connection.
type helloMessage struct {
	Type            string   `json:"type"`
	Client          string   `json:"client"`
	Protocols       []string `json:"protocols,omitempty"`
	CapabilityToken string   `json:"capabilityToken,omitempty"`
}

func (c *Coordinator) helloPayload() (string, error) {
	return sonic.ConfigFastest.MarshalToString(helloMessage{
		Type:            helloType,
		Client:          c.cfg.ClientName,
		Protocols:       c.cfg.Protocols,
		CapabilityToken: c.cfg.CapabilityToken,
	})
}
