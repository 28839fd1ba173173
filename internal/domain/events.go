package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// EventName is a wire-level Socket.IO event name agreed with the backend.
type EventName string

const (
	EventNewOrder     EventName = "novo-pedido"
	EventOrderUpdated EventName = "pedido-atualizado"
	EventOrderCreated EventName = "pedido-criado"

	// Outbound control events.
	EventJoinEstablishment  EventName = "join-estabelecimento"
	EventLeaveEstablishment EventName = "leave-estabelecimento"
)

// Fallbacks used when the backend omits a field.
const (
	DefaultOrderCode    = "Novo"
	DefaultCustomerName = "Cliente"
)

// InboundEvent is a decoded Socket.IO EVENT packet received from the server.
type InboundEvent struct {
	Name EventName
	// Args holds the raw JSON of each argument after the event name.
	Args []json.RawMessage
}

// FirstArg returns the first argument or nil when the event carried none.
func (e InboundEvent) FirstArg() json.RawMessage {
	if len(e.Args) == 0 {
		return nil
	}
	return e.Args[0]
}

// OrderNotification is the transient value decoded from an order event.
type OrderNotification struct {
	OrderID      string  `json:"order_id"`
	OrderCode    string  `json:"order_code"`
	CustomerName string  `json:"customer_name"`
	Total        float64 `json:"total"`
	ItemCount    int     `json:"item_count"`
}

type orderWire struct {
	ID           flexString        `json:"_id"`
	AltID        flexString        `json:"id"`
	CodigoPedido flexString        `json:"codigoPedido"`
	NomeCompleto flexString        `json:"nomeCompleto"`
	Total        flexNumber        `json:"total"`
	Produtos     []json.RawMessage `json:"produtos"`
}

// DecodeOrderNotification decodes an order payload. It accepts both the
// {"data": {...}} envelope and a bare order object. Malformed or absent
// fields fall back to defaults; it never fails.
func DecodeOrderNotification(raw json.RawMessage) OrderNotification {
	n := OrderNotification{
		OrderCode:    DefaultOrderCode,
		CustomerName: DefaultCustomerName,
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return n
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	body := raw
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if d := bytes.TrimSpace(envelope.Data); len(d) > 0 && d[0] == '{' {
			body = d
		}
	}

	var w orderWire
	if err := json.Unmarshal(body, &w); err != nil {
		// Field-by-field fallback for partially broken documents.
		var fields map[string]json.RawMessage
		if json.Unmarshal(body, &fields) != nil {
			return n
		}
		for key, target := range map[string]json.Unmarshaler{
			"_id":          &w.ID,
			"id":           &w.AltID,
			"codigoPedido": &w.CodigoPedido,
			"nomeCompleto": &w.NomeCompleto,
			"total":        &w.Total,
		} {
			if v, ok := fields[key]; ok {
				_ = target.UnmarshalJSON(v)
			}
		}
		_ = json.Unmarshal(fields["produtos"], &w.Produtos)
	}

	n.OrderID = string(w.ID)
	if n.OrderID == "" {
		n.OrderID = string(w.AltID)
	}
	if w.CodigoPedido != "" {
		n.OrderCode = string(w.CodigoPedido)
	}
	if w.NomeCompleto != "" {
		n.CustomerName = string(w.NomeCompleto)
	}
	n.Total = float64(w.Total)
	n.ItemCount = len(w.Produtos)
	return n
}

// flexString accepts JSON strings and numbers; anything else decodes to "".
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch b[0] {
	case '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return nil
		}
		*s = flexString(v)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*s = flexString(b)
	}
	return nil
}

// flexNumber accepts JSON numbers and numeric strings ("12,50" included);
// anything else, NaN and infinities included, is 0.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	var text string
	if b[0] == '"' {
		if err := json.Unmarshal(b, &text); err != nil {
			return nil
		}
		text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	} else {
		text = string(b)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*f = flexNumber(v)
	return nil
}
