package domain

// KeyPrefix namespaces every key this service writes.
const KeyPrefix = "stepmatch:"

// Key layout for the step catalog.
const (
	// StepKeyPrefix prefixes step hashes: stepmatch:step:<id>.
	StepKeyPrefix = KeyPrefix + "step:"
	// StepIndexName is the FT index covering step hashes.
	StepIndexName = KeyPrefix + "steps:idx"
	// ClusterKeyPrefix prefixes cluster metadata hashes: stepmatch:cluster:<id>.
	ClusterKeyPrefix = KeyPrefix + "cluster:"
)
