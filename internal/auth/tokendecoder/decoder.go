// Package tokendecoder extracts scoping claims from provider session tokens.
// Signatures are not verified; the provider does that on every call.
package tokendecoder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Info holds the best-effort claims of a token. Missing claims stay empty.
type Info struct {
	AgentID string
	UserID  string
}

type Decoder struct {
	parser *jwt.Parser
}

func New() *Decoder {
	return &Decoder{parser: jwt.NewParser()}
}

// Decode never fails. Malformed tokens or claims yield partial Info.
func (d *Decoder) Decode(token string) Info {
	token = strings.TrimSpace(token)
	if token == "" {
		return Info{}
	}

	claims := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(token, claims); err != nil {
		return Info{}
	}

	return Info{
		AgentID: agentID(claims["accounts"]),
		UserID:  scalar(claims["userId"]),
	}
}

// agentID reads accounts[0].connectedEntityId. The claim is either a JSON
// array or a string holding one.
func agentID(raw interface{}) string {
	var accounts []interface{}
	switch v := raw.(type) {
	case []interface{}:
		accounts = v
	case string:
		if err := json.Unmarshal([]byte(v), &accounts); err != nil {
			return ""
		}
	default:
		return ""
	}
	if len(accounts) == 0 {
		return ""
	}
	first, ok := accounts[0].(map[string]interface{})
	if !ok {
		return ""
	}
	return scalar(first["connectedEntityId"])
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%.0f", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
