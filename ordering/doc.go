// Package ordering implements the on-demand ordering side of the pipeline:
// the service that turns queued transactions into per-round proposals, and
// the gate that advances rounds on block events, solicits proposals and
// submits them to agreement.
//
// Proposals are produced on demand. Peers continuously fan transactions out
// to the consumers of the three plausible future rounds; only when a round is
// actually entered does its issuer get asked for the proposal it packed.
package ordering
