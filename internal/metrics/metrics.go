package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OnlineConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "deskline",
		Name:      "online_connections",
		Help:      "Number of live websocket connections registered in presence",
	})

	OnlineParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "deskline",
		Name:      "online_participants",
		Help:      "Number of participants with at least one live connection",
	})

	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskline",
		Name:      "commands_total",
		Help:      "Websocket commands handled, by command and result",
	}, []string{"command", "result"})

	MessagesAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskline",
		Name:      "messages_appended_total",
		Help:      "Messages durably appended, by sender type",
	}, []string{"sender_type"})

	StatusTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskline",
		Name:      "conversation_transitions_total",
		Help:      "Committed conversation status transitions, by target status",
	}, []string{"status"})

	DeliveryFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "deskline",
		Name:      "delivery_failures_total",
		Help:      "Events that could not be pushed to a connection, by event",
	}, []string{"event"})
)

func init() {
	prometheus.MustRegister(OnlineConns)
	prometheus.MustRegister(OnlineParticipants)
	prometheus.MustRegister(Commands)
	prometheus.MustRegister(MessagesAppended)
	prometheus.MustRegister(StatusTransitions)
	prometheus.MustRegister(DeliveryFailures)
}

// CommandResult records one handled command
func CommandResult(command string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Commands.WithLabelValues(command, result).Inc()
}
