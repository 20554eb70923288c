package model

// StageID identifies a pipeline stage. The set of valid ids is closed: the
// constants below are the only stages the default catalog defines.
type StageID string

// Phase 1: lead acquisition.
const (
	StageLeadSubmission StageID = "lead_submission"
	StageLeadValidation StageID = "lead_validation"
	StageLeadScoring    StageID = "lead_scoring"
)

// Phase 2: sales.
const (
	StageSalesAssignment     StageID = "sales_assignment"
	StageInitialContact      StageID = "initial_contact"
	StageNeedsAssessment     StageID = "needs_assessment"
	StageSiteSurvey          StageID = "site_survey"
	StageProposalPreparation StageID = "proposal_preparation"
	StageProposalReview      StageID = "proposal_review"
	StageProposalPresented   StageID = "proposal_presented"
	StageNegotiation         StageID = "negotiation"
)

// Phase 3: contract.
const (
	StageContractPreparation StageID = "contract_preparation"
	StageCreditApproval      StageID = "credit_approval"
	StageContractSigned      StageID = "contract_signed"
)

// Phase 4: production.
const (
	StageOrderEntry             StageID = "order_entry"
	StageEquipmentProcurement   StageID = "equipment_procurement"
	StageEquipmentConfiguration StageID = "equipment_configuration"
	StageQualityInspection      StageID = "quality_inspection"
)

// Phase 5: logistics.
const (
	StageShippingScheduled StageID = "shipping_scheduled"
	StageInTransit         StageID = "in_transit"
	StageDelivered         StageID = "delivered"
)

// Phase 6: installation.
const (
	StageInstallationScheduled  StageID = "installation_scheduled"
	StageInstallationInProgress StageID = "installation_in_progress"
	StageNetworkConfiguration   StageID = "network_configuration"
	StageCustomerTraining       StageID = "customer_training"
	StageInstallationAcceptance StageID = "installation_acceptance"
)

// Phase 7: ongoing management.
const (
	StageServiceActivation StageID = "service_activation"
	StageOngoingService    StageID = "ongoing_service"
	StageAccountReview     StageID = "account_review"
	StageContractRenewal   StageID = "contract_renewal"
)

// PhaseCount is the number of business phases in the pipeline.
const PhaseCount = 7

// PhaseNames holds the display name of each phase, indexed by phase-1.
var PhaseNames = [PhaseCount]string{
	"Lead Acquisition",
	"Sales",
	"Contract",
	"Production",
	"Logistics",
	"Installation",
	"Ongoing Management",
}

// StageDefinition is an immutable catalog entry describing one stage.
type StageDefinition struct {
	ID                StageID   `json:"id" yaml:"id"`
	Phase             int       `json:"phase" yaml:"phase"`
	Name              string    `json:"name" yaml:"name"`
	Description       string    `json:"description" yaml:"description"`
	NextActions       []StageID `json:"next_actions" yaml:"next_actions"`
	RequiredData      []string  `json:"required_data,omitempty" yaml:"required_data,omitempty"`
	EstimatedDuration string    `json:"estimated_duration" yaml:"estimated_duration"`
	ResponsibleRole   RoleID    `json:"responsible_role" yaml:"responsible_role"`
}

// Allows reports whether target is a legal successor of this stage.
func (d StageDefinition) Allows(target StageID) bool {
	for _, next := range d.NextActions {
		if next == target {
			return true
		}
	}
	return false
}

// Transition is an ordered (from, to) stage pair. It keys the handoff rule
// table.
type Transition struct {
	From StageID `json:"from" yaml:"from"`
	To   StageID `json:"to" yaml:"to"`
}

// String renders the transition as "from->to".
func (t Transition) String() string {
	return string(t.From) + "->" + string(t.To)
}

// HandoffRule describes how a workflow crossing a Transition moves between
// roles.
type HandoffRule struct {
	FromRole             RoleID   `json:"from_role" yaml:"from_role"`
	ToRole               RoleID   `json:"to_role" yaml:"to_role"`
	RequiredData         []string `json:"required_data,omitempty" yaml:"required_data,omitempty"`
	AutoHandoff          bool     `json:"auto_handoff" yaml:"auto_handoff"`
	NotificationTemplate string   `json:"notification_template" yaml:"notification_template"`
}
