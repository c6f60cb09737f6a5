package redis

// Redis key naming conventions for manta data.
// All keys are prefixed with "manta:" to avoid collisions.

const keyPrefix = "manta:"

// runKey returns the key for a run entity: manta:run:{id}
func runKey(id string) string { return keyPrefix + "run:" + id }

// runsByStartKey is the Sorted Set ordering run IDs by start time.
const runsByStartKey = keyPrefix + "runs_by_start"

// stepKey returns the key for a step row: manta:step:{runID}:{step}
func stepKey(runID, step string) string {
	return keyPrefix + "step:" + runID + ":" + step
}

// stepOrderKey returns the List key holding a run's step names in
// creation order: manta:steps:{runID}
func stepOrderKey(runID string) string { return keyPrefix + "steps:" + runID }
