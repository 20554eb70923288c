package catalog

import "github.com/pitabwire/crmflow/model"

func next(ids ...model.StageID) []model.StageID { return ids }

// defaultStages returns the 30-stage sales-to-service pipeline in catalog
// order.
func defaultStages() []model.StageDefinition {
	return []model.StageDefinition{
		// Phase 1: lead acquisition.
		{
			ID: model.StageLeadSubmission, Phase: 1, Name: "Lead Submission",
			Description:       "Inbound lead captured from web form, referral or trade show",
			NextActions:       next(model.StageLeadValidation),
			RequiredData:      []string{"company_name", "contact_name", "source"},
			EstimatedDuration: "same day",
			ResponsibleRole:   model.RoleMarketingCoordinator,
		},
		{
			ID: model.StageLeadValidation, Phase: 1, Name: "Lead Validation",
			Description:       "Contact details verified and duplicates removed",
			NextActions:       next(model.StageLeadScoring),
			RequiredData:      []string{"validated_contact"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleMarketingCoordinator,
		},
		{
			ID: model.StageLeadScoring, Phase: 1, Name: "Lead Scoring",
			Description:       "Lead scored on fit, budget and timing",
			NextActions:       next(model.StageSalesAssignment),
			RequiredData:      []string{"lead_score"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleMarketingCoordinator,
		},

		// Phase 2: sales.
		{
			ID: model.StageSalesAssignment, Phase: 2, Name: "Sales Assignment",
			Description:       "Qualified lead assigned to a sales representative",
			NextActions:       next(model.StageInitialContact),
			RequiredData:      []string{"territory"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleSalesManager,
		},
		{
			ID: model.StageInitialContact, Phase: 2, Name: "Initial Contact",
			Description:       "First call or meeting with the prospect",
			NextActions:       next(model.StageNeedsAssessment),
			RequiredData:      []string{"contact_outcome"},
			EstimatedDuration: "2-3 days",
			ResponsibleRole:   model.RoleSalesRep,
		},
		{
			ID: model.StageNeedsAssessment, Phase: 2, Name: "Needs Assessment",
			Description:       "Document volumes, equipment fleet and service expectations",
			NextActions:       next(model.StageSiteSurvey, model.StageProposalPreparation),
			RequiredData:      []string{"requirements"},
			EstimatedDuration: "3-5 days",
			ResponsibleRole:   model.RoleSalesRep,
		},
		{
			ID: model.StageSiteSurvey, Phase: 2, Name: "Site Survey",
			Description:       "Technician visits the site to check power, network and access",
			NextActions:       next(model.StageProposalPreparation),
			RequiredData:      []string{"survey_report"},
			EstimatedDuration: "2-4 days",
			ResponsibleRole:   model.RoleFieldTechnician,
		},
		{
			ID: model.StageProposalPreparation, Phase: 2, Name: "Proposal Preparation",
			Description:       "Pricing, equipment configuration and service terms drafted",
			NextActions:       next(model.StageProposalReview),
			RequiredData:      []string{"proposal_amount"},
			EstimatedDuration: "2-3 days",
			ResponsibleRole:   model.RoleSalesRep,
		},
		{
			ID: model.StageProposalReview, Phase: 2, Name: "Proposal Review",
			Description:       "Sales manager checks margins and approves the proposal",
			NextActions:       next(model.StageProposalPresented, model.StageProposalPreparation),
			RequiredData:      []string{"review_decision"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleSalesManager,
		},
		{
			ID: model.StageProposalPresented, Phase: 2, Name: "Proposal Presented",
			Description:       "Proposal delivered to the customer",
			NextActions:       next(model.StageNegotiation, model.StageContractPreparation),
			RequiredData:      []string{"presentation_date"},
			EstimatedDuration: "1-7 days",
			ResponsibleRole:   model.RoleSalesRep,
		},
		{
			ID: model.StageNegotiation, Phase: 2, Name: "Negotiation",
			Description:       "Terms and pricing negotiated with the customer",
			NextActions:       next(model.StageContractPreparation, model.StageProposalPreparation),
			RequiredData:      []string{"negotiated_terms"},
			EstimatedDuration: "1-2 weeks",
			ResponsibleRole:   model.RoleSalesRep,
		},

		// Phase 3: contract.
		{
			ID: model.StageContractPreparation, Phase: 3, Name: "Contract Preparation",
			Description:       "Contract drafted from the accepted proposal",
			NextActions:       next(model.StageCreditApproval),
			RequiredData:      []string{"accepted_proposal_id"},
			EstimatedDuration: "2-3 days",
			ResponsibleRole:   model.RoleContractAdministrator,
		},
		{
			ID: model.StageCreditApproval, Phase: 3, Name: "Credit Approval",
			Description:       "Customer credit checked and leasing terms approved",
			NextActions:       next(model.StageContractSigned),
			RequiredData:      []string{"credit_decision"},
			EstimatedDuration: "2-5 days",
			ResponsibleRole:   model.RoleFinanceManager,
		},
		{
			ID: model.StageContractSigned, Phase: 3, Name: "Contract Signed",
			Description:       "Contract countersigned by both parties",
			NextActions:       next(model.StageOrderEntry),
			RequiredData:      []string{"signed_contract_ref"},
			EstimatedDuration: "1-3 days",
			ResponsibleRole:   model.RoleContractAdministrator,
		},

		// Phase 4: production.
		{
			ID: model.StageOrderEntry, Phase: 4, Name: "Order Entry",
			Description:       "Sales order entered and equipment list confirmed",
			NextActions:       next(model.StageEquipmentProcurement),
			RequiredData:      []string{"order_number"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleOperationsManager,
		},
		{
			ID: model.StageEquipmentProcurement, Phase: 4, Name: "Equipment Procurement",
			Description:       "Equipment and accessories ordered or allocated from stock",
			NextActions:       next(model.StageEquipmentConfiguration),
			RequiredData:      []string{"purchase_order"},
			EstimatedDuration: "1-2 weeks",
			ResponsibleRole:   model.RoleProcurementSpecialist,
		},
		{
			ID: model.StageEquipmentConfiguration, Phase: 4, Name: "Equipment Configuration",
			Description:       "Devices configured, firmware updated and asset tagged",
			NextActions:       next(model.StageQualityInspection),
			RequiredData:      []string{"serial_numbers"},
			EstimatedDuration: "2-4 days",
			ResponsibleRole:   model.RoleProductionTechnician,
		},
		{
			ID: model.StageQualityInspection, Phase: 4, Name: "Quality Inspection",
			Description:       "Configured equipment tested before shipment",
			NextActions:       next(model.StageShippingScheduled, model.StageEquipmentConfiguration),
			RequiredData:      []string{"inspection_report"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleQualityInspector,
		},

		// Phase 5: logistics.
		{
			ID: model.StageShippingScheduled, Phase: 5, Name: "Shipping Scheduled",
			Description:       "Carrier booked and delivery window agreed with the customer",
			NextActions:       next(model.StageInTransit),
			RequiredData:      []string{"delivery_window"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleLogisticsCoordinator,
		},
		{
			ID: model.StageInTransit, Phase: 5, Name: "In Transit",
			Description:       "Equipment on its way to the customer site",
			NextActions:       next(model.StageDelivered),
			RequiredData:      []string{"tracking_number"},
			EstimatedDuration: "1-5 days",
			ResponsibleRole:   model.RoleLogisticsCoordinator,
		},
		{
			ID: model.StageDelivered, Phase: 5, Name: "Delivered",
			Description:       "Equipment received and signed for on site",
			NextActions:       next(model.StageInstallationScheduled),
			RequiredData:      []string{"delivery_confirmation"},
			EstimatedDuration: "same day",
			ResponsibleRole:   model.RoleLogisticsCoordinator,
		},

		// Phase 6: installation.
		{
			ID: model.StageInstallationScheduled, Phase: 6, Name: "Installation Scheduled",
			Description:       "Installation crew and date confirmed",
			NextActions:       next(model.StageInstallationInProgress),
			RequiredData:      []string{"installation_date"},
			EstimatedDuration: "1-3 days",
			ResponsibleRole:   model.RoleInstallationManager,
		},
		{
			ID: model.StageInstallationInProgress, Phase: 6, Name: "Installation In Progress",
			Description:       "Equipment installed and powered on",
			NextActions:       next(model.StageNetworkConfiguration),
			RequiredData:      []string{"installed_assets"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleFieldTechnician,
		},
		{
			ID: model.StageNetworkConfiguration, Phase: 6, Name: "Network Configuration",
			Description:       "Devices joined to the customer network and meter reporting enabled",
			NextActions:       next(model.StageCustomerTraining),
			RequiredData:      []string{"network_settings"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleITSpecialist,
		},
		{
			ID: model.StageCustomerTraining, Phase: 6, Name: "Customer Training",
			Description:       "Key users trained on equipment and the customer portal",
			NextActions:       next(model.StageInstallationAcceptance),
			RequiredData:      []string{"trained_users"},
			EstimatedDuration: "1 day",
			ResponsibleRole:   model.RoleFieldTechnician,
		},
		{
			ID: model.StageInstallationAcceptance, Phase: 6, Name: "Installation Acceptance",
			Description:       "Customer signs off the installation",
			NextActions:       next(model.StageServiceActivation),
			RequiredData:      []string{"acceptance_signature"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleInstallationManager,
		},

		// Phase 7: ongoing management.
		{
			ID: model.StageServiceActivation, Phase: 7, Name: "Service Activation",
			Description:       "Service contract, billing and supply replenishment activated",
			NextActions:       next(model.StageOngoingService),
			RequiredData:      []string{"billing_account"},
			EstimatedDuration: "1-2 days",
			ResponsibleRole:   model.RoleAccountManager,
		},
		{
			ID: model.StageOngoingService, Phase: 7, Name: "Ongoing Service",
			Description:       "Account in steady state: meter reads, supplies and service calls",
			NextActions:       next(model.StageAccountReview),
			EstimatedDuration: "ongoing",
			ResponsibleRole:   model.RoleAccountManager,
		},
		{
			ID: model.StageAccountReview, Phase: 7, Name: "Account Review",
			Description:       "Periodic business review of usage and satisfaction",
			NextActions:       next(model.StageOngoingService, model.StageContractRenewal),
			RequiredData:      []string{"review_notes"},
			EstimatedDuration: "quarterly",
			ResponsibleRole:   model.RoleAccountManager,
		},
		{
			ID: model.StageContractRenewal, Phase: 7, Name: "Contract Renewal",
			Description:       "Contract renewed or equipment refresh proposed",
			NextActions:       next(model.StageOngoingService),
			RequiredData:      []string{"renewal_terms"},
			EstimatedDuration: "2-4 weeks",
			ResponsibleRole:   model.RoleAccountManager,
		},
	}
}
