package engine

import "github.com/cespare/xxhash/v2"

// Strategy says whether an operation shows its effect before the remote
// store confirms it.
type Strategy int

const (
	// Pessimistic operations wait for the store and leave memory untouched on failure.
	Pessimistic Strategy = iota
	// Optimistic operations update memory first and resync on failure.
	Optimistic
)

func (s Strategy) String() string {
	if s == Optimistic {
		return "optimistic"
	}
	return "pessimistic"
}

type Op string

const (
	OpCreate        Op = "create"
	OpUpdate        Op = "update"
	OpDelete        Op = "delete"
	OpToggleArchive Op = "toggle_archive"
	OpReorder       Op = "reorder"
)

var strategies = map[Op]Strategy{
	OpCreate:        Pessimistic,
	OpUpdate:        Pessimistic,
	OpDelete:        Pessimistic,
	OpToggleArchive: Pessimistic,
	OpReorder:       Optimistic,
}

// StrategyFor returns the strategy an operation runs with.
func StrategyFor(op Op) Strategy {
	return strategies[op]
}

const partitionBuckets = 1000

// PartitionBase is the first persisted order index of scope's partition.
// Distinct scopes can share a bucket.
func PartitionBase(scope string) int {
	return (int(xxhash.Sum64String(scope)%partitionBuckets) + 1) * partitionBuckets
}

// PersistedIndex maps a local index inside scope to the stored order index.
func PersistedIndex(scope string, local int) int {
	if scope == "" {
		return local
	}
	return PartitionBase(scope) + local
}
