package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

// Engine.IO v4 packet types.
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineUpgrade byte = '5'
	engineNoop    byte = '6'
)

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	socketConnect      byte = '0'
	socketDisconnect   byte = '1'
	socketEvent        byte = '2'
	socketAck          byte = '3'
	socketConnectError byte = '4'
	socketBinaryEvent  byte = '5'
	socketBinaryAck    byte = '6'
)

// EngineProtocol is the Engine.IO protocol revision spoken by this client.
const EngineProtocol = "4"

// recordSeparator delimits packets in a polling payload.
const recordSeparator = "\x1e"

var errMalformedPacket = errors.New("malformed packet")

// OpenPayload is the body of the Engine.IO open packet.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // milliseconds
	PingTimeout  int      `json:"pingTimeout"`  // milliseconds
	MaxPayload   int      `json:"maxPayload"`
}

// SocketPacket is a decoded Socket.IO packet.
type SocketPacket struct {
	Type      byte
	Namespace string
	AckID     *int
	Data      json.RawMessage
}

// parseOpen decodes an Engine.IO open packet.
func parseOpen(pkt string) (OpenPayload, error) {
	var open OpenPayload
	if len(pkt) == 0 || pkt[0] != engineOpen {
		return open, fmt.Errorf("%w: expected open packet, got %q", domain.ErrHandshake, truncate(pkt))
	}
	if err := json.Unmarshal([]byte(pkt[1:]), &open); err != nil {
		return open, fmt.Errorf("%w: invalid open payload: %v", domain.ErrHandshake, err)
	}
	if open.SID == "" {
		return open, fmt.Errorf("%w: open payload without sid", domain.ErrHandshake)
	}
	return open, nil
}

// encodeConnect builds the Socket.IO CONNECT packet for the default namespace.
func encodeConnect(auth map[string]string) (string, error) {
	if len(auth) == 0 {
		return string([]byte{engineMessage, socketConnect}), nil
	}
	b, err := json.Marshal(auth)
	if err != nil {
		return "", err
	}
	return string([]byte{engineMessage, socketConnect}) + string(b), nil
}

// encodeDisconnect builds the Socket.IO DISCONNECT packet for the default namespace.
func encodeDisconnect() string {
	return string([]byte{engineMessage, socketDisconnect})
}

// encodeEvent builds a Socket.IO EVENT packet for the default namespace.
func encodeEvent(event domain.EventName, args ...any) (string, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, string(event))
	payload = append(payload, args...)
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode event %s: %w", event, err)
	}
	return string([]byte{engineMessage, socketEvent}) + string(b), nil
}

// parseSocketPacket decodes the Socket.IO packet inside an Engine.IO message
// (the part after the leading '4').
func parseSocketPacket(s string) (SocketPacket, error) {
	var p SocketPacket
	if len(s) == 0 {
		return p, errMalformedPacket
	}
	p.Type = s[0]
	if p.Type < socketConnect || p.Type > socketBinaryAck {
		return p, fmt.Errorf("%w: unknown socket packet type %q", errMalformedPacket, p.Type)
	}
	rest := s[1:]

	if p.Type == socketBinaryEvent || p.Type == socketBinaryAck {
		// "<count>-" attachment prefix
		if i := strings.IndexByte(rest, '-'); i >= 0 {
			rest = rest[i+1:]
		}
	}

	p.Namespace = "/"
	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = rest
			return p, nil
		}
		p.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return p, fmt.Errorf("%w: ack id: %v", errMalformedPacket, err)
		}
		p.AckID = &id
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return p, fmt.Errorf("%w: invalid json data", errMalformedPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// decodeEvent turns EVENT packet data (`["name", arg...]`) into an InboundEvent.
func decodeEvent(data json.RawMessage) (domain.InboundEvent, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: event is not an array: %v", errMalformedPacket, err)
	}
	if len(parts) == 0 {
		return domain.InboundEvent{}, fmt.Errorf("%w: empty event", errMalformedPacket)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return domain.InboundEvent{}, fmt.Errorf("%w: event name: %v", errMalformedPacket, err)
	}
	return domain.InboundEvent{Name: domain.EventName(name), Args: parts[1:]}, nil
}

// connectError extracts the message of a CONNECT_ERROR packet.
func connectError(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(data)
}

// splitPayload splits a polling response body into packets.
func splitPayload(body string) []string {
	if body == "" {
		return nil
	}
	return strings.Split(body, recordSeparator)
}

// joinPayload encodes packets into a polling request body.
func joinPayload(packets []string) string {
	return strings.Join(packets, recordSeparator)
}

func truncate(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
