package tan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is one line's live status at a stop, as returned by the
// tempsattente endpoint.
type Status struct {
	Direction     int      `json:"sens"`
	Terminus      string   `json:"terminus"`
	Incident      FlexBool `json:"infotrafic"`
	WaitText      string   `json:"temps"` // "4mn", "Proche", ">1h"
	LastDeparture FlexBool `json:"dernierDepart"`
	RealTime      FlexBool `json:"tempsReel"`
	Line          LineRef  `json:"ligne"`
	Stop          StopRef  `json:"arret"`
}

// LineRef identifies the line serving a Status.
type LineRef struct {
	Number string     `json:"numLigne"`
	Type   FlexString `json:"typeLigne"`
}

// StopRef identifies the physical stop (platform) of a Status.
type StopRef struct {
	Code string `json:"codeArret"`
}

// FlexBool decodes a JSON boolean or its string form ("true", "false").
// Empty strings and null decode to false.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*b = false
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*b = false
			return nil
		}
		v, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("flexbool: %w", err)
		}
		*b = FlexBool(v)
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("flexbool: %w", err)
	}
	*b = FlexBool(v)
	return nil
}

// FlexString decodes a JSON string or number into its text form.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flexstring: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}
