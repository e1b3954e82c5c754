package lode

import (
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/ostorc/msbuild/buildevent"
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/runtime"
	"github.com/ostorc/msbuild/types"
)

func sharedFactory(store lode.Store) lode.StoreFactory {
	return func() (lode.Store, error) { return store, nil }
}

func testConfig(buildID string) Config {
	return Config{Dataset: DefaultDataset, BuildID: buildID, Day: "2026-10-19"}
}

// testResolution builds a finished resolution with one file resolved and
// one event per category.
func testResolution(t *testing.T, nodeID int) *runtime.Resolution {
	t.Helper()

	result := contract.NewResult(false, &contract.Response{
		ResolvedFiles: []contract.ReadOnlyTaskItem{
			{Spec: "/refs/Foo.dll", Meta: map[string]string{"ResolvedFrom": "{HintPathFromItem}"}},
		},
		CopyLocalFiles: []contract.ReadOnlyTaskItem{{Spec: "/refs/Foo.dll"}},
	})
	events := []buildevent.Event{
		&buildevent.ErrorEvent{
			EventArgs: buildevent.EventArgs{Message: "could not resolve Bar"},
			Location:  buildevent.Location{Code: "MSB3245", File: "app.csproj", LineNumber: 12},
		},
		&buildevent.WarningEvent{
			EventArgs: buildevent.EventArgs{Message: "conflict"},
			Location:  buildevent.Location{Code: "MSB3277"},
		},
		&buildevent.MessageEvent{
			EventArgs:  buildevent.EventArgs{Message: "Primary reference Foo", Timestamp: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)},
			Importance: buildevent.ImportanceLow,
		},
		&buildevent.ProjectFinishedEvent{ProjectFile: "lib.csproj", Succeeded: true},
	}
	for _, ev := range events {
		if err := result.AddEvent(ev); err != nil {
			t.Fatalf("AddEvent: %v", err)
		}
	}
	result.EventCount++ // one event lost in transit

	return &runtime.Resolution{
		Meta:            &types.NodeMeta{SessionID: "build-1", NodeID: nodeID, Mode: "launcher", PID: 1},
		Outcome:         &types.Outcome{Status: types.OutcomeTaskFailed, Message: "could not resolve Bar"},
		Duration:        1500 * time.Millisecond,
		Result:          result,
		EventsForwarded: 4,
		EventsDropped:   1,
	}
}
