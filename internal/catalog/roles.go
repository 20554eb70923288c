package catalog

import "github.com/pitabwire/crmflow/model"

type roleRow struct {
	id         model.RoleID
	name       string
	department string
	dashboard  string
	viewPhases []int
	canAssign  bool
}

var roleTable = []roleRow{
	{model.RoleMarketingCoordinator, "Marketing Coordinator", "Marketing", "Lead Pipeline", []int{1, 2}, false},
	{model.RoleSalesManager, "Sales Manager", "Sales", "Sales Team", []int{1, 2, 3}, true},
	{model.RoleSalesRep, "Sales Representative", "Sales", "My Opportunities", []int{2, 3}, false},
	{model.RoleContractAdministrator, "Contract Administrator", "Legal", "Contracts", []int{2, 3, 4}, false},
	{model.RoleFinanceManager, "Finance Manager", "Finance", "Credit & Billing", []int{3, 4}, true},
	{model.RoleOperationsManager, "Operations Manager", "Operations", "Operations", []int{3, 4, 5, 6}, true},
	{model.RoleProcurementSpecialist, "Procurement Specialist", "Operations", "Purchasing", []int{4}, false},
	{model.RoleProductionTechnician, "Production Technician", "Production", "Build Queue", []int{4}, false},
	{model.RoleQualityInspector, "Quality Inspector", "Production", "Inspections", []int{4, 5}, false},
	{model.RoleLogisticsCoordinator, "Logistics Coordinator", "Logistics", "Shipments", []int{4, 5, 6}, false},
	{model.RoleInstallationManager, "Installation Manager", "Field Services", "Installations", []int{5, 6, 7}, true},
	{model.RoleFieldTechnician, "Field Technician", "Field Services", "Site Visits", []int{2, 6}, false},
	{model.RoleITSpecialist, "IT Specialist", "IT", "Network Setup", []int{6, 7}, false},
	{model.RoleAccountManager, "Account Manager", "Customer Success", "Accounts", []int{6, 7}, true},
}

// defaultManagers maps a role to the role that approves its manual
// handoffs. Roles missing from the map escalate to admin.
var defaultManagers = map[model.RoleID]model.RoleID{
	model.RoleMarketingCoordinator:  model.RoleSalesManager,
	model.RoleSalesRep:              model.RoleSalesManager,
	model.RoleContractAdministrator: model.RoleFinanceManager,
	model.RoleProcurementSpecialist: model.RoleOperationsManager,
	model.RoleProductionTechnician:  model.RoleOperationsManager,
	model.RoleQualityInspector:      model.RoleOperationsManager,
	model.RoleLogisticsCoordinator:  model.RoleOperationsManager,
	model.RoleFieldTechnician:       model.RoleInstallationManager,
	model.RoleITSpecialist:          model.RoleInstallationManager,
	model.RoleAccountManager:        model.RoleAdmin,
}

// defaultRoles derives each role's permission set from the stage table: a
// role views every stage of its phases and edits and advances the stages it
// is responsible for.
func defaultRoles(stages []model.StageDefinition) []model.RoleDefinition {
	roles := make([]model.RoleDefinition, 0, len(roleTable)+1)
	for _, rs := range roleTable {
		phases := make(map[int]bool, len(rs.viewPhases))
		for _, p := range rs.viewPhases {
			phases[p] = true
		}
		perms := model.Permissions{
			CanView:    model.StageSet{},
			CanEdit:    model.StageSet{},
			CanAdvance: model.StageSet{},
			CanAssign:  rs.canAssign,
		}
		for _, st := range stages {
			if phases[st.Phase] {
				perms.CanView[st.ID] = true
			}
			if st.ResponsibleRole == rs.id {
				perms.CanView[st.ID] = true
				perms.CanEdit[st.ID] = true
				perms.CanAdvance[st.ID] = true
			}
		}
		roles = append(roles, model.RoleDefinition{
			ID:          rs.id,
			Name:        rs.name,
			Department:  rs.department,
			Permissions: perms,
			Dashboard:   rs.dashboard,
		})
	}

	all := model.NewStageSet(model.AllStages)
	roles = append(roles, model.RoleDefinition{
		ID:         model.RoleAdmin,
		Name:       "Administrator",
		Department: "Management",
		Permissions: model.Permissions{
			CanView:    all,
			CanEdit:    all.Clone(),
			CanAdvance: all.Clone(),
			CanAssign:  true,
		},
		Dashboard: "Executive Overview",
	})
	return roles
}
