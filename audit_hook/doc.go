// Package audithook is an orchestrator extension that bridges run and step
// lifecycle events to an immutable audit trail backend.
//
// Every lifecycle hook emits a structured audit event through the [Recorder]
// interface. The extension assigns appropriate severity levels (info for
// normal operations, warning for step failures, critical for failed runs)
// and rich metadata (workflow name, step name, elapsed time, errors).
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return trail.Write(ctx, evt.Action, evt.Resource, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionRunFailed,
//	        audithook.ActionStepFailed,
//	    ),
//	)
package audithook
