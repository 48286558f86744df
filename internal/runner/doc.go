// Package runner wires configuration, snapshot persistence, diffing, target
// building, and the pipeline into the operations the CLI exposes.
//
// Every operation that writes state holds an advisory lock on the state
// directory, so two processes never mutate the same snapshot store or output
// tree at once. Snapshot and configuration failures abort the operation;
// failures of individual targets are reported in the Report and never do.
package runner
