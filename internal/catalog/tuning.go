package catalog

import (
	"crypto/sha256"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/crmflow/model"
)

// DefaultEstimateDays applies to stages without an entry in
// Tuning.CompletionEstimates.
const DefaultEstimateDays = 30

// Tuning holds the operator-adjustable numbers of the pipeline: how many days
// a workflow entering a stage is expected to need until completion, and
// which stages count as milestones.
type Tuning struct {
	DefaultEstimateDays int                   `yaml:"default_estimate_days" json:"default_estimate_days"`
	CompletionEstimates map[model.StageID]int `yaml:"completion_estimates" json:"completion_estimates"`
	MilestoneStages     []model.StageID       `yaml:"milestone_stages" json:"milestone_stages"`

	// Checksum is the SHA-256 of the source file; empty for built-in tuning.
	Checksum string `yaml:"-" json:"checksum,omitempty"`
}

// DefaultTuning returns the built-in estimates and milestones.
func DefaultTuning() Tuning {
	return Tuning{
		DefaultEstimateDays: DefaultEstimateDays,
		CompletionEstimates: map[model.StageID]int{
			model.StageLeadSubmission:         45,
			model.StageLeadValidation:         44,
			model.StageLeadScoring:            42,
			model.StageSalesAssignment:        40,
			model.StageInitialContact:         38,
			model.StageNeedsAssessment:        35,
			model.StageSiteSurvey:             32,
			model.StageProposalPreparation:    30,
			model.StageProposalReview:         28,
			model.StageProposalPresented:      26,
			model.StageNegotiation:            24,
			model.StageContractPreparation:    21,
			model.StageCreditApproval:         19,
			model.StageContractSigned:         17,
			model.StageOrderEntry:             16,
			model.StageEquipmentProcurement:   14,
			model.StageEquipmentConfiguration: 9,
			model.StageQualityInspection:      7,
			model.StageShippingScheduled:      6,
			model.StageInTransit:              5,
			model.StageDelivered:              3,
			model.StageInstallationScheduled:  3,
			model.StageInstallationInProgress: 2,
			model.StageNetworkConfiguration:   2,
			model.StageCustomerTraining:       1,
			model.StageInstallationAcceptance: 1,
			model.StageServiceActivation:      1,
		},
		MilestoneStages: []model.StageID{
			model.StageSalesAssignment,
			model.StageProposalPresented,
			model.StageContractSigned,
			model.StageDelivered,
			model.StageInstallationAcceptance,
			model.StageServiceActivation,
		},
	}
}

// EstimateDays returns the completion estimate for a workflow entering stage.
func (t Tuning) EstimateDays(stage model.StageID) int {
	if d, ok := t.CompletionEstimates[stage]; ok {
		return d
	}
	if t.DefaultEstimateDays > 0 {
		return t.DefaultEstimateDays
	}
	return DefaultEstimateDays
}

// IsMilestone reports whether reaching stage records a milestone.
func (t Tuning) IsMilestone(stage model.StageID) bool {
	return slices.Contains(t.MilestoneStages, stage)
}

// Validate checks every stage the tuning names against c.
func (t Tuning) Validate(c *Catalog) error {
	var errs []string
	if t.DefaultEstimateDays < 0 {
		errs = append(errs, "default_estimate_days must not be negative")
	}
	for id, days := range t.CompletionEstimates {
		if !c.HasStage(id) {
			errs = append(errs, fmt.Sprintf("completion_estimates: unknown stage %q", id))
		}
		if days < 0 {
			errs = append(errs, fmt.Sprintf("completion_estimates[%s]: must not be negative", id))
		}
	}
	for i, id := range t.MilestoneStages {
		if !c.HasStage(id) {
			errs = append(errs, fmt.Sprintf("milestone_stages[%d]: unknown stage %q", i, id))
		}
	}
	if len(errs) > 0 {
		slices.Sort(errs)
		return fmt.Errorf("tuning validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadTuning reads a YAML tuning file and validates it against c. Fields the
// file omits keep their built-in values.
func LoadTuning(path string, c *Catalog) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("reading %s: %w", path, err)
	}

	t := DefaultTuning()
	var raw Tuning
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Tuning{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	if raw.DefaultEstimateDays != 0 {
		t.DefaultEstimateDays = raw.DefaultEstimateDays
	}
	if raw.CompletionEstimates != nil {
		t.CompletionEstimates = raw.CompletionEstimates
	}
	if raw.MilestoneStages != nil {
		t.MilestoneStages = raw.MilestoneStages
	}
	t.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))

	if err := t.Validate(c); err != nil {
		return Tuning{}, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// TuningRegistry serves the current Tuning to concurrent readers and lets a
// reloader swap it atomically.
type TuningRegistry struct {
	snap atomic.Pointer[Tuning]
}

// NewTuningRegistry creates a registry holding t.
func NewTuningRegistry(t Tuning) *TuningRegistry {
	r := &TuningRegistry{}
	r.Replace(t)
	return r
}

// Replace atomically swaps the current tuning.
func (r *TuningRegistry) Replace(t Tuning) {
	r.snap.Store(&t)
}

// Current returns the tuning in effect.
func (r *TuningRegistry) Current() Tuning {
	return *r.snap.Load()
}

// Checksum returns the checksum of the current tuning.
func (r *TuningRegistry) Checksum() string {
	return r.snap.Load().Checksum
}
