package events

import (
	"testing"

	"github.com/shoplytics/analytics_backend/models"
)

func TestEventWeights(t *testing.T) {
	cases := []struct {
		eventType string
		want      float64
	}{
		{models.EventTypeProductViewed, 1},
		{models.EventTypeCartAbandoned, -2},
		{models.EventTypeCheckoutStarted, 5},
		{models.EventTypeOrderCompleted, 10},
		{"unknown-event", 0},
	}
	for _, tc := range cases {
		if got := eventWeight(tc.eventType); got != tc.want {
			t.Fatalf("eventWeight(%s) = %v; want %v", tc.eventType, got, tc.want)
		}
	}
}

func TestEveryKnownEventTypeHasWeight(t *testing.T) {
	known := []string{
		models.EventTypeProductViewed,
		models.EventTypeCartAbandoned,
		models.EventTypeCheckoutStarted,
		models.EventTypeOrderCompleted,
	}
	for _, eventType := range known {
		if _, ok := engagementWeights[eventType]; !ok {
			t.Fatalf("event type %s has no engagement weight", eventType)
		}
	}
}
