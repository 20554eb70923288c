package catalog

import "github.com/pitabwire/crmflow/model"

// RuleEntry pairs a handoff rule with the transition that keys it.
type RuleEntry struct {
	model.Transition
	model.HandoffRule
}

func defaultRules() map[model.Transition]model.HandoffRule {
	return map[model.Transition]model.HandoffRule{
		{From: model.StageLeadScoring, To: model.StageSalesAssignment}: {
			FromRole:             model.RoleMarketingCoordinator,
			ToRole:               model.RoleSalesManager,
			RequiredData:         []string{"validated_contact", "lead_score"},
			AutoHandoff:          true,
			NotificationTemplate: "qualified_lead_ready",
		},
		{From: model.StageSalesAssignment, To: model.StageInitialContact}: {
			FromRole:             model.RoleSalesManager,
			ToRole:               model.RoleSalesRep,
			AutoHandoff:          true,
			NotificationTemplate: "lead_assigned",
		},
		{From: model.StageProposalPreparation, To: model.StageProposalReview}: {
			FromRole:             model.RoleSalesRep,
			ToRole:               model.RoleSalesManager,
			RequiredData:         []string{"proposal_amount"},
			AutoHandoff:          true,
			NotificationTemplate: "proposal_review_requested",
		},
		{From: model.StageProposalPresented, To: model.StageContractPreparation}: {
			FromRole:             model.RoleSalesRep,
			ToRole:               model.RoleContractAdministrator,
			RequiredData:         []string{"accepted_proposal_id"},
			AutoHandoff:          false,
			NotificationTemplate: "contract_requested",
		},
		{From: model.StageNegotiation, To: model.StageContractPreparation}: {
			FromRole:             model.RoleSalesRep,
			ToRole:               model.RoleContractAdministrator,
			RequiredData:         []string{"accepted_proposal_id"},
			AutoHandoff:          false,
			NotificationTemplate: "contract_requested",
		},
		{From: model.StageContractPreparation, To: model.StageCreditApproval}: {
			FromRole:             model.RoleContractAdministrator,
			ToRole:               model.RoleFinanceManager,
			RequiredData:         []string{"contract_value"},
			AutoHandoff:          true,
			NotificationTemplate: "credit_check_requested",
		},
		{From: model.StageContractSigned, To: model.StageOrderEntry}: {
			FromRole:             model.RoleContractAdministrator,
			ToRole:               model.RoleOperationsManager,
			RequiredData:         []string{"signed_contract_ref"},
			AutoHandoff:          true,
			NotificationTemplate: "order_ready",
		},
		{From: model.StageQualityInspection, To: model.StageShippingScheduled}: {
			FromRole:             model.RoleQualityInspector,
			ToRole:               model.RoleLogisticsCoordinator,
			RequiredData:         []string{"inspection_report"},
			AutoHandoff:          true,
			NotificationTemplate: "ready_to_ship",
		},
		{From: model.StageDelivered, To: model.StageInstallationScheduled}: {
			FromRole:             model.RoleLogisticsCoordinator,
			ToRole:               model.RoleInstallationManager,
			RequiredData:         []string{"delivery_confirmation"},
			AutoHandoff:          true,
			NotificationTemplate: "installation_required",
		},
		{From: model.StageNetworkConfiguration, To: model.StageCustomerTraining}: {
			FromRole:             model.RoleITSpecialist,
			ToRole:               model.RoleFieldTechnician,
			AutoHandoff:          true,
			NotificationTemplate: "training_ready",
		},
		{From: model.StageInstallationAcceptance, To: model.StageServiceActivation}: {
			FromRole:             model.RoleInstallationManager,
			ToRole:               model.RoleAccountManager,
			RequiredData:         []string{"acceptance_signature"},
			AutoHandoff:          false,
			NotificationTemplate: "account_handover",
		},
	}
}
