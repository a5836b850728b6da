package stream

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Bitforex heartbeat frames live outside the JSON channel namespace: the
// client sends the literal text "ping_p", the server answers "pong_p".
const (
	pingFrame = "ping_p"
	pongFrame = "pong_p"
)

const subscribeType = "subHq"

// subscribeCommand is one entry of an outbound subscribe frame.
type subscribeCommand struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Param Params `json:"param"`
}

// encodeSubscribe builds the subscribe frame for a single subscription.
// Bitforex frames subscribe commands as JSON arrays of subHq entries; one
// frame per subscription keeps group order observable on the wire.
func encodeSubscribe(sub *Subscription) ([]byte, error) {
	frame := []subscribeCommand{{
		Type:  subscribeType,
		Event: sub.channel,
		Param: sub.params,
	}}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode subscribe %s: %w", sub.Key(), err)
	}
	return data, nil
}

// serverFrame is the envelope of an inbound data frame.
type serverFrame struct {
	Event string          `json:"event"`
	Param json.RawMessage `json:"param"`
	Data  json.RawMessage `json:"data"`
}

// decodeFrame parses an inbound data frame envelope.
func decodeFrame(data []byte) (serverFrame, error) {
	var frame serverFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return serverFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Event == "" {
		return serverFrame{}, fmt.Errorf("decode frame: missing event")
	}
	return frame, nil
}

// echoKey derives the subscription key from an inbound frame's event and
// param echo. The echo is a JSON object with no guaranteed member order, so
// the values are canonicalized the same way Params.canonical does it.
func echoKey(event string, paramEcho json.RawMessage) (string, error) {
	if len(paramEcho) == 0 {
		return subscriptionKey(event, ""), nil
	}

	var raw map[string]any
	if err := json.Unmarshal(paramEcho, &raw); err != nil {
		return "", fmt.Errorf("decode param echo: %w", err)
	}

	pairs := make([]string, 0, len(raw))
	for k, v := range raw {
		pairs = append(pairs, k+"="+echoValue(v))
	}
	sort.Strings(pairs)
	return subscriptionKey(event, strings.Join(pairs, "&")), nil
}

// echoValue renders an echoed param value the way it was sent. Parameters go
// out as strings; a server that echoes them back as JSON numbers still has
// to match.
func echoValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
