// Package steps persists the BDD step catalog as Redis hashes covered by an
// FT index, and handles usage counters and cluster assignments.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/stepmatch/internal/db"
	"github.com/kailas-cloud/stepmatch/internal/domain"
	"github.com/kailas-cloud/stepmatch/internal/domain/candidate"
)

// Hash field names of a step document. The FT index schema in EnsureIndex
// must stay in sync with these.
const (
	FieldID           = "id"
	FieldStepType     = "step_type"
	FieldStepText     = "step_text"
	FieldStepNorm     = "step_normalized"
	FieldStepIndex    = "step_index"
	FieldScenarioID   = "scenario_id"
	FieldScenarioName = "scenario_name"
	FieldScenarioText = "scenario_text"
	FieldGivenSteps   = "given_steps"
	FieldWhenSteps    = "when_steps"
	FieldThenSteps    = "then_steps"
	FieldUsageCount   = "usage_count"
	FieldClusterID    = "cluster_id"
	FieldVector       = "vector"
)

// listSep joins multi-valued step lists inside a single hash field.
const listSep = "\n"

// store is the consumer interface for the step catalog (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, val int64) (int64, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Record pairs a catalog candidate with its embedding vector.
type Record struct {
	Candidate candidate.Candidate
	Vector    []float32
}

// Repo implements the step catalog over db.Store.
type Repo struct {
	store store
}

// New creates a step catalog repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// EnsureIndex creates the FT index over step hashes if it does not exist.
func (r *Repo) EnsureIndex(ctx context.Context, dim, m, efConstruct int) error {
	exists, err := r.store.IndexExists(ctx, domain.StepIndexName)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     domain.StepIndexName,
		Prefixes: []string{domain.StepKeyPrefix},
		Fields: []db.IndexField{
			{Name: FieldStepType, Type: db.IndexFieldTag},
			{Name: FieldScenarioID, Type: db.IndexFieldTag},
			{Name: FieldClusterID, Type: db.IndexFieldTag},
			{Name: FieldStepNorm, Type: db.IndexFieldText},
			{Name: FieldUsageCount, Type: db.IndexFieldNumeric},
			{
				Name:              FieldVector,
				Type:              db.IndexFieldVector,
				VectorAlgo:        db.VectorHNSW,
				VectorDim:         dim,
				VectorDistance:    db.DistanceCosine,
				VectorM:           m,
				VectorEFConstruct: efConstruct,
			},
		},
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Save writes step records in a single pipelined round-trip.
func (r *Repo) Save(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(recs))
	for i, rec := range recs {
		items[i] = db.HashSetItem{
			Key:    Key(rec.Candidate.ID),
			Fields: buildFields(rec),
		}
	}
	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("save steps: %w", err)
	}
	return nil
}

// Get returns a single catalog candidate by id.
func (r *Repo) Get(ctx context.Context, id string) (candidate.Candidate, error) {
	fields, err := r.store.HGetAll(ctx, Key(id))
	if err != nil {
		return candidate.Candidate{}, fmt.Errorf("get step %s: %w", id, err)
	}
	if len(fields) == 0 {
		return candidate.Candidate{}, domain.ErrNotFound
	}
	return FromFields(id, fields), nil
}

// All returns every catalog record, vectors included. Used by offline
// clustering; the catalog is small enough for a full scan.
func (r *Repo) All(ctx context.Context) ([]Record, error) {
	keys, err := r.store.Scan(ctx, domain.StepKeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("scan steps: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch steps: %w", err)
	}

	recs := make([]Record, 0, len(maps))
	for i, fields := range maps {
		if len(fields) == 0 {
			continue
		}
		id := strings.TrimPrefix(keys[i], domain.StepKeyPrefix)
		rec := Record{Candidate: FromFields(id, fields)}
		if blob, ok := fields[FieldVector]; ok {
			rec.Vector = db.VectorFromBlob(blob)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IncrementUsage bumps the usage counter of a reused step.
func (r *Repo) IncrementUsage(ctx context.Context, id string) (int64, error) {
	n, err := r.store.HIncrBy(ctx, Key(id), FieldUsageCount, 1)
	if err != nil {
		return 0, fmt.Errorf("increment usage %s: %w", id, err)
	}
	return n, nil
}

// SetClusterID stamps a step with its cluster assignment.
func (r *Repo) SetClusterID(ctx context.Context, id, clusterID string) error {
	if err := r.store.HSet(ctx, Key(id), map[string]string{FieldClusterID: clusterID}); err != nil {
		return fmt.Errorf("set cluster %s: %w", id, err)
	}
	return nil
}

// SetClusterTemplate stores the canonical template of a cluster in its
// metadata hash.
func (r *Repo) SetClusterTemplate(ctx context.Context, clusterID, template string) error {
	key := domain.ClusterKeyPrefix + clusterID
	if err := r.store.HSet(ctx, key, map[string]string{"template": template}); err != nil {
		return fmt.Errorf("set cluster template %s: %w", clusterID, err)
	}
	return nil
}

// Key builds the hash key for a step id.
func Key(id string) string {
	return domain.StepKeyPrefix + id
}

// FromFields reconstructs a candidate from step hash fields. Absent fields
// map to zero values. Shared with the retrieval repository, which gets the
// same field layout back from FT.SEARCH.
func FromFields(id string, fields map[string]string) candidate.Candidate {
	c := candidate.Candidate{
		ID:               id,
		StepType:         fields[FieldStepType],
		StepText:         fields[FieldStepText],
		StepNormalized:   fields[FieldStepNorm],
		ScenarioID:       fields[FieldScenarioID],
		ScenarioName:     fields[FieldScenarioName],
		ScenarioFullText: fields[FieldScenarioText],
		ClusterID:        fields[FieldClusterID],
	}
	if v, err := strconv.Atoi(fields[FieldStepIndex]); err == nil {
		c.StepIndex = v
	}
	if v, err := strconv.Atoi(fields[FieldUsageCount]); err == nil {
		c.UsageCount = v
	}
	c.GivenSteps = splitList(fields[FieldGivenSteps])
	c.WhenSteps = splitList(fields[FieldWhenSteps])
	c.ThenSteps = splitList(fields[FieldThenSteps])
	return c
}

func buildFields(rec Record) map[string]string {
	c := rec.Candidate
	fields := map[string]string{
		FieldID:           c.ID,
		FieldStepType:     c.StepType,
		FieldStepText:     c.StepText,
		FieldStepNorm:     c.StepNormalized,
		FieldStepIndex:    strconv.Itoa(c.StepIndex),
		FieldScenarioID:   c.ScenarioID,
		FieldScenarioName: c.ScenarioName,
		FieldScenarioText: c.ScenarioFullText,
		FieldUsageCount:   strconv.Itoa(c.UsageCount),
		FieldClusterID:    c.ClusterID,
	}
	if len(c.GivenSteps) > 0 {
		fields[FieldGivenSteps] = strings.Join(c.GivenSteps, listSep)
	}
	if len(c.WhenSteps) > 0 {
		fields[FieldWhenSteps] = strings.Join(c.WhenSteps, listSep)
	}
	if len(c.ThenSteps) > 0 {
		fields[FieldThenSteps] = strings.Join(c.ThenSteps, listSep)
	}
	if len(rec.Vector) > 0 {
		fields[FieldVector] = db.VectorBlob(rec.Vector)
	}
	return fields
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, listSep)
}
