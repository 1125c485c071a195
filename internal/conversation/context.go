package conversation

import (
	"encoding/json"
	"fmt"
)

// Scratch holds the in-flight draft and onboarding answers. It is cleared
// whenever a flow completes.
type Scratch struct {
	To            string `json:"to,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Body          string `json:"body,omitempty"`
	ReplyToID     string `json:"replyToId,omitempty"`
	Context       string `json:"context,omitempty"`
	PromoHandling string `json:"promoHandling,omitempty"`
}

// Context is the per-address conversation state. There is exactly one live
// context per chat address.
type Context struct {
	Address string
	UserID  int64
	Phase   Phase
	Scratch Scratch
}

func newContext(address string, userID int64, phase Phase) *Context {
	return &Context{Address: address, UserID: userID, Phase: phase}
}

const (
	kindOnboarding = "onboarding"
	kindActive     = "active"
)

type phaseJSON struct {
	Kind  string `json:"kind"`
	Stage Stage  `json:"stage,omitempty"`
	Step  Step   `json:"step,omitempty"`
}

type contextJSON struct {
	Address string    `json:"address"`
	UserID  int64     `json:"userId,omitempty"`
	Phase   phaseJSON `json:"phase"`
	Scratch Scratch   `json:"scratch"`
}

func (c Context) MarshalJSON() ([]byte, error) {
	out := contextJSON{Address: c.Address, UserID: c.UserID, Scratch: c.Scratch}
	switch p := c.Phase.(type) {
	case Onboarding:
		out.Phase = phaseJSON{Kind: kindOnboarding, Stage: p.Stage}
	case Active:
		out.Phase = phaseJSON{Kind: kindActive, Step: p.Step}
	default:
		return nil, fmt.Errorf("conversation: unknown phase %T", c.Phase)
	}
	return json.Marshal(out)
}

func (c *Context) UnmarshalJSON(data []byte) error {
	var in contextJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Phase.Kind {
	case kindOnboarding:
		if in.Phase.Stage == "" {
			return fmt.Errorf("conversation: onboarding phase without stage")
		}
		c.Phase = Onboarding{Stage: in.Phase.Stage}
	case kindActive:
		c.Phase = Active{Step: in.Phase.Step}
	default:
		return fmt.Errorf("conversation: unknown phase kind %q", in.Phase.Kind)
	}
	c.Address = in.Address
	c.UserID = in.UserID
	c.Scratch = in.Scratch
	return nil
}
