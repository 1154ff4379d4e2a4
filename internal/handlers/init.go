package handlers

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"

	"letterworks/internal/audit"
	"letterworks/internal/ledger"
	"letterworks/internal/letters"
	"letterworks/internal/orchestrator"
	"letterworks/internal/review"
	"letterworks/pkg/logging"
	"letterworks/pkg/monitoring"
)

var (
	db        *sql.DB
	logger    logging.Logger
	store     *letters.Store
	allowance *ledger.Ledger
	trail     *audit.Trail
	orch      *orchestrator.Orchestrator
	reviews   *review.Service
	metrics   *ScrivenerMetrics
)

// ScrivenerMetrics holds the letter workflow metrics
type ScrivenerMetrics struct {
	LettersGenerated  *prometheus.CounterVec
	GenerationFailed  *prometheus.CounterVec
	CreditsDeducted   *prometheus.CounterVec
	ReviewDecisions   *prometheus.CounterVec
	ClaimConflicts    *prometheus.CounterVec
	PendingQueueDepth *prometheus.GaugeVec
}

// NewScrivenerMetrics registers the letter workflow metrics on the collector
func NewScrivenerMetrics(mc *monitoring.MetricsCollector) *ScrivenerMetrics {
	return &ScrivenerMetrics{
		LettersGenerated: mc.NewCounter("letters_generated_total",
			"Letters generated successfully", []string{"letter_type"}),
		GenerationFailed: mc.NewCounter("letter_generation_failures_total",
			"Generation attempts where every provider failed", []string{"letter_type"}),
		CreditsDeducted: mc.NewCounter("letter_credits_deducted_total",
			"Allowance credits consumed", nil),
		ReviewDecisions: mc.NewCounter("letter_review_decisions_total",
			"Review decisions by outcome", []string{"decision"}),
		ClaimConflicts: mc.NewCounter("letter_claim_conflicts_total",
			"Claims lost to another reviewer", nil),
		PendingQueueDepth: mc.NewGauge("letter_pending_queue_depth",
			"Unclaimed letters awaiting review", nil),
	}
}

// Init initializes the handlers with their dependencies
func Init(database *sql.DB, log logging.Logger,
	letterStore *letters.Store, allowanceLedger *ledger.Ledger, auditTrail *audit.Trail,
	o *orchestrator.Orchestrator, reviewSvc *review.Service, m *ScrivenerMetrics) {
	db = database
	logger = log
	store = letterStore
	allowance = allowanceLedger
	trail = auditTrail
	orch = o
	reviews = reviewSvc
	metrics = m
}
