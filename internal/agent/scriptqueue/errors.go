package scriptqueue

import "errors"

// Sentinel errors a Future.Wait caller (execute_javascript's tool handler)
// matches against to build the structured tool-result error, per spec §7.
var (
	errExecutionTimeout   = errors.New("ExecutionTimeout")
	errExecutionCancelled = errors.New("ExecutionCancelled")
	errTargetClosed       = errors.New("TargetClosed")
)

// IsTimeout reports whether err is the queue's timeout sentinel.
func IsTimeout(err error) bool { return errors.Is(err, errExecutionTimeout) }

// IsCancelled reports whether err is the queue's cancellation sentinel.
func IsCancelled(err error) bool { return errors.Is(err, errExecutionCancelled) }

// IsTargetClosed reports whether err is the queue's target-closed sentinel.
func IsTargetClosed(err error) bool { return errors.Is(err, errTargetClosed) }
