// Package blackboard provides the type-safe contract for the Mercatus
// BlackBoard task-orchestration core. Teams, expert instances, tasks,
// assignments and the audit trail are all defined here, together with the
// task state machine and the error taxonomy shared by every engine.
//
// The package holds no behaviour beyond validation and pure state-machine
// rules; the engines under internal/ (board, scheduler, depgraph, workflow,
// scaler, monitor) operate on these types through the hybrid store.
package blackboard
