package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeOrderNotification(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want OrderNotification
	}{
		{
			name: "wrapped payload",
			raw:  `{"data":{"_id":"665f","codigoPedido":"PED-12","nomeCompleto":"Ana Souza","total":150.5,"produtos":[{"nome":"P13"},{"nome":"P45"},{"nome":"Água"}]}}`,
			want: OrderNotification{OrderID: "665f", OrderCode: "PED-12", CustomerName: "Ana Souza", Total: 150.5, ItemCount: 3},
		},
		{
			name: "bare payload with id fallback",
			raw:  `{"id":"77","codigoPedido":"9","nomeCompleto":"Rui","total":"12,50"}`,
			want: OrderNotification{OrderID: "77", OrderCode: "9", CustomerName: "Rui", Total: 12.5},
		},
		{
			name: "missing produtos",
			raw:  `{"data":{"_id":"a","codigoPedido":"1"}}`,
			want: OrderNotification{OrderID: "a", OrderCode: "1", CustomerName: DefaultCustomerName},
		},
		{
			name: "empty data",
			raw:  `{"data":{}}`,
			want: OrderNotification{OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "numeric code",
			raw:  `{"data":{"codigoPedido":1234}}`,
			want: OrderNotification{OrderCode: "1234", CustomerName: DefaultCustomerName},
		},
		{
			name: "wrong field types fall back per field",
			raw:  `{"data":{"_id":"b","codigoPedido":{"x":1},"nomeCompleto":"Bia","total":"abc","produtos":"none"}}`,
			want: OrderNotification{OrderID: "b", OrderCode: DefaultOrderCode, CustomerName: "Bia"},
		},
		{
			name: "NaN total",
			raw:  `{"data":{"_id":"n","total":"NaN"}}`,
			want: OrderNotification{OrderID: "n", OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "infinite totals",
			raw:  `{"data":{"_id":"i","total":"Infinity"}}`,
			want: OrderNotification{OrderID: "i", OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "negative infinity",
			raw:  `{"data":{"_id":"j","total":"-Inf"}}`,
			want: OrderNotification{OrderID: "j", OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "not an object",
			raw:  `"novo"`,
			want: OrderNotification{OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "null data uses outer object",
			raw:  `{"data":null,"_id":"c"}`,
			want: OrderNotification{OrderID: "c", OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
		{
			name: "absent",
			raw:  ``,
			want: OrderNotification{OrderCode: DefaultOrderCode, CustomerName: DefaultCustomerName},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.Equal(t, tt.want, DecodeOrderNotification(json.RawMessage(tt.raw)))
			})
		})
	}
}

func TestInboundEventFirstArg(t *testing.T) {
	assert.Nil(t, InboundEvent{Name: EventNewOrder}.FirstArg())
	ev := InboundEvent{Name: EventNewOrder, Args: []json.RawMessage{json.RawMessage(`1`), json.RawMessage(`2`)}}
	assert.Equal(t, json.RawMessage(`1`), ev.FirstArg())
}

func TestDecodedNonFiniteTotalStillEncodes(t *testing.T) {
	for _, total := range []string{`"NaN"`, `"Infinity"`, `"+Inf"`, `1e400`} {
		n := DecodeOrderNotification(json.RawMessage(`{"data":{"_id":"x","total":` + total + `}}`))
		assert.Zero(t, n.Total, total)
		_, err := json.Marshal(Toast{State: ToastVisible, Order: &n})
		assert.NoError(t, err, total)
	}
}
