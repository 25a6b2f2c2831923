package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Received = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_received_total",
		Help: "Total inbound conversation webhooks handled.",
	})
	Forwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_forwarded_total",
		Help: "Total messages accepted by the bot endpoint.",
	})
	SkippedHandoff = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_skipped_handoff_total",
		Help: "Total messages skipped because the conversation was handed off.",
	})
	SkippedMultiParty = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_skipped_multiparty_total",
		Help: "Total messages skipped because more than one participant is present.",
	})
	Duplicates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_duplicates_total",
		Help: "Total re-delivered messages dropped by message sid dedupe.",
	})
	DispatchFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_dispatch_fail_total",
		Help: "Total dispatches rejected by the bot endpoint or short-circuited.",
	})
	TypingFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_typing_fail_total",
		Help: "Total failures to update the typing attribute.",
	})
	CallbackAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_callback_accepted_total",
		Help: "Total bot callbacks with a valid token.",
	})
	CallbackRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_callback_rejected_total",
		Help: "Total bot callbacks rejected for a missing or invalid token.",
	})
	BreakerOpen = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_breaker_open_total",
		Help: "Total times a circuit breaker opened for a bot.",
	})
	BreakerDrop = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_relay_breaker_drop_total",
		Help: "Total dispatches skipped due to breaker open.",
	})
)

func Register() {
	prometheus.MustRegister(
		Received, Forwarded,
		SkippedHandoff, SkippedMultiParty, Duplicates,
		DispatchFail, TypingFail,
		CallbackAccepted, CallbackRejected,
		BreakerOpen, BreakerDrop,
	)
}
