// Package explore drives seeded, reward-guided exploration of a stateful HTTP
// service and records anomalous episodes for deterministic replay.
//
// # Reading Guide
//
// Start with these files to understand one exploration step:
//   - action.go, catalog.go: action templates and the instances sampled from them
//   - adapter.go: the Target interface and its HTTP implementation
//   - observation.go: state signatures and anomaly markers
//   - explorer.go: the episode loop tying policy, archive, reward and recorder together
//
// # Architecture
//
// An episode resets the target, then repeatedly asks the Policy for an action,
// performs it through the Target, scores the Observation with the RewardModel
// against the episode's NoveltyArchive, and appends the step to a Recorder.
// Episodes that raise a marker are persisted by the ArtifactStore as JSON;
// Replay re-executes a stored episode verbatim against a fresh target.
//
// All randomness flows from a per-episode seed (rng.go), so the same seed,
// catalog and target behavior produce the same action sequence.
//
// Sub-packages:
//   - explore/trace/: per-decision policy trace recording and summaries
//   - explore/internal/targettest/: in-process inventory service used by tests
package explore
