package metrics

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	ObserveIngest("", time.Millisecond)
	IncSample("")
	IncDropped()
	IncStoreError("")
	IncAlertEvent("")
	IncCommandResult("")
	ObservePollCycle("", time.Millisecond)
	ObserveExport("", "", time.Millisecond)
}

func TestInitIsIdempotent(t *testing.T) {
	Init(nil, zerolog.Nop())
	Init(nil, zerolog.Nop())
	if ingestMessages == nil || commandResults == nil {
		t.Fatalf("expected collectors registered")
	}
	ObserveIngest(IngestResultClassified, time.Millisecond)
	IncCommandResult(CommandResultSent)
	SetQueueDepth(3)
}

func TestResultLabels(t *testing.T) {
	labels := map[string]string{
		"success":    ResultSuccess,
		"error":      ResultError,
		"classified": IngestResultClassified,
		"empty":      IngestResultEmpty,
		"ignored":    IngestResultIgnored,
		"dropped":    IngestResultDropped,
		"sent":       CommandResultSent,
		"failed":     CommandResultFailed,
	}
	for want, got := range labels {
		if got != want {
			t.Fatalf("label %q has value %q", want, got)
		}
	}
}
