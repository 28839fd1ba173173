package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"gitlab.com/talagas/dashboard/order-notifier/internal/domain"
)

var allStates = []domain.ConnectionState{
	domain.StateConnecting,
	domain.StateConnected,
	domain.StateDisconnected,
	domain.StateError,
}

var (
	ConnectionStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "talagas_notifier_connection_state",
			Help: "Current order socket state (1 for the active state, 0 otherwise).",
		},
		[]string{"state"},
	)

	DialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_socket_dials_total",
			Help: "Socket dial attempts by transport and outcome.",
		},
		[]string{"transport", "outcome"},
	)

	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talagas_notifier_reconnect_attempts_total",
			Help: "Reconnect attempts made after a failed dial or a lost connection.",
		},
	)

	InboundEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_inbound_events_total",
			Help: "Socket events received by name.",
		},
		[]string{"event"},
	)

	HandlerPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_handler_panics_total",
			Help: "Recovered panics in event handlers.",
		},
		[]string{"event"},
	)

	ToastsShownTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talagas_notifier_toasts_shown_total",
			Help: "New-order toasts shown, replacements included.",
		},
	)

	ToastsHiddenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_toasts_hidden_total",
			Help: "Toasts hidden by reason.",
		},
		[]string{"reason"},
	)

	PushNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_push_notifications_total",
			Help: "Push notifications by outcome (sent, skipped, failed).",
		},
		[]string{"outcome"},
	)

	AudioCuesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talagas_notifier_audio_cues_total",
			Help: "Audio cues by outcome (played, failed).",
		},
		[]string{"outcome"},
	)

	UIStreamConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "talagas_notifier_ui_stream_connections",
			Help: "Number of dashboard UI clients on the toast stream.",
		},
	)
)

// SetConnectionState marks state as the only active connection state.
func SetConnectionState(state domain.ConnectionState) {
	for _, s := range allStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionStateGauge.WithLabelValues(string(s)).Set(v)
	}
}

// IncrementDial records a dial attempt.
func IncrementDial(transport, outcome string) {
	DialsTotal.WithLabelValues(transport, outcome).Inc()
}

// IncrementReconnectAttempt records one reconnect attempt.
func IncrementReconnectAttempt() {
	ReconnectAttemptsTotal.Inc()
}

// IncrementInboundEvent records a received socket event.
func IncrementInboundEvent(event domain.EventName) {
	InboundEventsTotal.WithLabelValues(string(event)).Inc()
}

// IncrementHandlerPanic records a recovered handler panic.
func IncrementHandlerPanic(event domain.EventName) {
	HandlerPanicsTotal.WithLabelValues(string(event)).Inc()
}

// IncrementToastShown records a toast show.
func IncrementToastShown() {
	ToastsShownTotal.Inc()
}

// IncrementToastHidden records a toast hide.
func IncrementToastHidden(reason string) {
	ToastsHiddenTotal.WithLabelValues(reason).Inc()
}

// IncrementPush records a push notification outcome.
func IncrementPush(outcome string) {
	PushNotificationsTotal.WithLabelValues(outcome).Inc()
}

// IncrementAudioCue records an audio cue outcome.
func IncrementAudioCue(outcome string) {
	AudioCuesTotal.WithLabelValues(outcome).Inc()
}

// IncrementUIStreamConnections increments the UI stream gauge.
func IncrementUIStreamConnections() {
	UIStreamConnectionsGauge.Inc()
}

// DecrementUIStreamConnections decrements the UI stream gauge.
func DecrementUIStreamConnections() {
	UIStreamConnectionsGauge.Dec()
}
