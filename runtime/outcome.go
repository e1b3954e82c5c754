package runtime

import (
	"github.com/ostorc/msbuild/contract"
	"github.com/ostorc/msbuild/types"
)

// Exit codes of the resolve command.
const (
	ExitCodeSuccess       = 0 // task succeeded
	ExitCodeTaskFailed    = 1 // worker answered with TaskResult=false
	ExitCodeLaunchFailure = 2 // worker could not be launched or handshaken
	ExitCodeNodeCrash     = 3 // channel ended without a result
)

// DetermineOutcome classifies a result returned by the worker. A nil result
// means the worker never answered.
func DetermineOutcome(result *contract.Result) *types.Outcome {
	if result == nil {
		return &types.Outcome{
			Status:  types.OutcomeNodeCrash,
			Message: ErrNodeTerminated.Error(),
		}
	}
	if result.TaskResult {
		return &types.Outcome{
			Status:  types.OutcomeSuccess,
			Message: "resolution completed successfully",
		}
	}

	outcome := &types.Outcome{
		Status:  types.OutcomeTaskFailed,
		Message: "resolution task failed",
	}
	// The first error event is the most useful summary.
	if len(result.ErrorEvents) > 0 && result.ErrorEvents[0].Message != "" {
		outcome.Message = result.ErrorEvents[0].Message
	}
	return outcome
}

// ExitCode maps an outcome status to the resolve command's exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeTaskFailed:
		return ExitCodeTaskFailed
	case types.OutcomeLaunchFailure:
		return ExitCodeLaunchFailure
	default:
		return ExitCodeNodeCrash
	}
}
