package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextState_LegalTransitions(t *testing.T) {
	tests := []struct {
		from  RequestState
		event Decision
		want  RequestState
	}{
		{StateSubmitted, DecisionBeginReview, StatePending},
		{StateSubmitted, DecisionApprove, StateApproved},
		{StateSubmitted, DecisionReject, StateRejected},
		{StateSubmitted, DecisionReschedule, StateRescheduled},
		{StatePending, DecisionApprove, StateApproved},
		{StatePending, DecisionReject, StateRejected},
		{StatePending, DecisionReschedule, StateRescheduled},
		{StateRescheduled, DecisionBeginReview, StatePending},
		{StateApproved, DecisionForward, StateForwarded},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_"+string(tt.event), func(t *testing.T) {
			got, err := NextState(tt.from, tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every (from, event) pair outside the table must fail, including
// anything out of a terminal state.
func TestNextState_IllegalTransitions(t *testing.T) {
	states := []RequestState{
		StateSubmitted, StatePending, StateApproved,
		StateRejected, StateRescheduled, StateForwarded,
	}
	events := []Decision{
		DecisionBeginReview, DecisionApprove, DecisionReject,
		DecisionReschedule, DecisionForward,
	}

	legal := map[RequestState]map[Decision]bool{
		StateSubmitted:   {DecisionBeginReview: true, DecisionApprove: true, DecisionReject: true, DecisionReschedule: true},
		StatePending:     {DecisionApprove: true, DecisionReject: true, DecisionReschedule: true},
		StateRescheduled: {DecisionBeginReview: true},
		StateApproved:    {DecisionForward: true},
	}

	for _, from := range states {
		for _, event := range events {
			if legal[from][event] {
				continue
			}
			_, err := NextState(from, event)
			assert.ErrorIs(t, err, ErrInvalidTransition,
				"expected %s + %s to be illegal", from, event)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateForwarded.Terminal())
	assert.False(t, StateSubmitted.Terminal())
	assert.False(t, StatePending.Terminal())
	assert.False(t, StateApproved.Terminal())
	assert.False(t, StateRescheduled.Terminal())
}

func TestParseDecision(t *testing.T) {
	for _, valid := range []string{"begin-review", "approve", "reject", "reschedule", "forward"} {
		got, err := ParseDecision(valid)
		require.NoError(t, err)
		assert.Equal(t, Decision(valid), got)
	}

	// Unknown strings and the internal submit pseudo-event are rejected
	for _, invalid := range []string{"", "submit", "APPROVE", "delete"} {
		_, err := ParseDecision(invalid)
		assert.ErrorIs(t, err, ErrInvalidPayload, "input %q", invalid)
	}
}

func TestParsePriority(t *testing.T) {
	got, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, got, "empty priority defaults to medium")

	got, err = ParsePriority("urgent")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, got)

	_, err = ParsePriority("critical")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPriorityOrdering(t *testing.T) {
	assert.Less(t, PriorityLow.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityUrgent.Rank())
}

func TestEffectiveDeadline(t *testing.T) {
	now := time.Now()
	base := now.Add(24 * time.Hour)
	moved := now.Add(72 * time.Hour)

	req := &Request{}
	assert.Equal(t, now, req.EffectiveDeadline(now), "no deadlines falls back to now")

	req.Deadline = &base
	assert.Equal(t, base, req.EffectiveDeadline(now))

	// Rescheduling never rewrites the original deadline, only the moved one wins
	req.RescheduledDeadline = &moved
	assert.Equal(t, moved, req.EffectiveDeadline(now))
	assert.Equal(t, base, *req.Deadline)
}

func TestNotificationDedupKey(t *testing.T) {
	n := &Notification{
		RelatedRequestID: "req-1",
		Kind:             KindDecisionMade,
		ToState:          StateRejected,
		RecipientRole:    "customer-7",
	}
	assert.Equal(t, "req-1:decision-made:rejected:customer-7", n.DedupKey())
}

func TestRequestClone_IsDeep(t *testing.T) {
	d := time.Now()
	orig := &Request{
		ID:      "r1",
		Payload: map[string]interface{}{"title": "spring campaign"},
		ReviewHistory: []ReviewEntry{
			{ReviewerRole: "marketing", FromState: StateSubmitted, ToState: StatePending},
		},
		Deadline: &d,
	}

	cp := orig.Clone()
	cp.Payload["title"] = "mutated"
	cp.ReviewHistory[0].ReviewerRole = "admin"
	*cp.Deadline = d.Add(time.Hour)

	assert.Equal(t, "spring campaign", orig.Payload["title"])
	assert.Equal(t, "marketing", orig.ReviewHistory[0].ReviewerRole)
	assert.Equal(t, d, *orig.Deadline)
}
