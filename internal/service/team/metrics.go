package team

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names used in logs and metrics.
const (
	opCreateTeam    = "create_team"
	opDissolveTeam  = "dissolve_team"
	opAddMember     = "add_member"
	opRemoveMember  = "remove_member"
	opGetMembers    = "get_members"
	opListUserTeams = "list_user_teams"
	opReconcile     = "reconcile"
)

// Metrics counts engine operations by outcome. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec
}

// NewMetrics registers the engine counters with reg. An already registered
// collector is reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "teamhub",
		Subsystem: "membership",
		Name:      "operations_total",
		Help:      "Membership operations by outcome.",
	}, []string{"op", "outcome"})
	if err := reg.Register(ops); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		ops = existing
	}
	return &Metrics{operations: ops}, nil
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPartialFailure):
		return "partial_failure"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFoundOrForbidden), errors.Is(err, ErrForbidden):
		return "denied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNonEmptyTeam):
		return "non_empty"
	default:
		return "error"
	}
}
