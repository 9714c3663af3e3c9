package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/mezonai/quorumcoin/logx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type OpResult string

const (
	OpSucceeded OpResult = "success"
	OpRejected  OpResult = "rejected"
)

type ReplyOutcome string

const (
	ReplyOK           ReplyOutcome = "ok"
	ReplyError        ReplyOutcome = "error"
	ReplyBadSignature ReplyOutcome = "bad_signature"
	ReplyLate         ReplyOutcome = "late"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds prometheus.Gauge
	ledgerOps         *prometheus.CounterVec
	rejectedOps       *prometheus.CounterVec
	ledgerOpLatency   *prometheus.HistogramVec
	joinedLinks       prometheus.Counter
	panicCount        prometheus.Counter
	quorumWait        *prometheus.HistogramVec
	replicaReplies    *prometheus.CounterVec
	disagreements     *prometheus.CounterVec
	writebackLinks    *prometheus.CounterVec
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "quorumcoin_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node start",
			},
		),
		ledgerOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorumcoin_ledger_ops_total",
				Help: "Ledger operations handled by this replica",
			},
			[]string{"op", "result"},
		),
		rejectedOps: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorumcoin_ledger_rejected_ops_total",
				Help: "Ledger operations rejected by this replica",
			},
			[]string{"op", "reason"},
		),
		ledgerOpLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "quorumcoin_ledger_op_seconds",
				Help: "Time spent executing a ledger operation",
			},
			[]string{"op"},
		),
		joinedLinks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quorumcoin_ledger_joined_links_total",
				Help: "Chain links ingested through writeback",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "quorumcoin_panic_count",
				Help: "Recovered panics in background goroutines",
			},
		),
		quorumWait: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "quorumcoin_quorum_wait_seconds",
				Help: "Time until the response threshold was reached or the wait gave up",
			},
			[]string{"op", "reached"},
		),
		replicaReplies: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorumcoin_quorum_replica_replies_total",
				Help: "Replica replies seen by the quorum coordinator",
			},
			[]string{"replica", "outcome"},
		),
		disagreements: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorumcoin_quorum_disagreements_total",
				Help: "Operations where validly signed replicas reported different payloads",
			},
			[]string{"op"},
		),
		writebackLinks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quorumcoin_writeback_links_total",
				Help: "Links pushed to lagging replicas",
			},
			[]string{"replica"},
		),
	}
}

var (
	nodeMetrics *nodePromMetrics
	initOnce    sync.Once
)

func metrics() *nodePromMetrics {
	initOnce.Do(func() {
		nodeMetrics = newNodePromMetrics()
	})
	return nodeMetrics
}

// InitMetrics registers the collectors and stamps the start time.
func InitMetrics() {
	metrics().nodeUpUnixSeconds.SetToCurrentTime()
}

func RegisterMetrics(mux *http.ServeMux) {
	logx.Info("MONITORING", "Registering prometheus metrics")
	mux.Handle("/metrics", promhttp.Handler())
}

func RecordLedgerOp(op string, result OpResult, duration time.Duration) {
	m := metrics()
	m.ledgerOps.With(prometheus.Labels{"op": op, "result": string(result)}).Inc()
	m.ledgerOpLatency.With(prometheus.Labels{"op": op}).Observe(duration.Seconds())
}

func RecordRejectedOp(op string, reason string) {
	metrics().rejectedOps.With(prometheus.Labels{
		"op":     op,
		"reason": reason,
	}).Inc()
}

func AddJoinedLinks(n int) {
	metrics().joinedLinks.Add(float64(n))
}

func IncreasePanicCount() {
	metrics().panicCount.Inc()
}

func RecordQuorumWait(op string, reached bool, duration time.Duration) {
	label := "false"
	if reached {
		label = "true"
	}
	metrics().quorumWait.With(prometheus.Labels{"op": op, "reached": label}).Observe(duration.Seconds())
}

func RecordReplicaReply(replica string, outcome ReplyOutcome) {
	metrics().replicaReplies.With(prometheus.Labels{
		"replica": replica,
		"outcome": string(outcome),
	}).Inc()
}

func IncreaseDisagreements(op string) {
	metrics().disagreements.With(prometheus.Labels{"op": op}).Inc()
}

func AddWritebackLinks(replica string, n int) {
	metrics().writebackLinks.With(prometheus.Labels{"replica": replica}).Add(float64(n))
}
