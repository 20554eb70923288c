package model

// RoleID identifies a role in the organisation.
type RoleID string

// Roles defined by the default catalog.
const (
	RoleMarketingCoordinator  RoleID = "marketing_coordinator"
	RoleSalesManager          RoleID = "sales_manager"
	RoleSalesRep              RoleID = "sales_rep"
	RoleContractAdministrator RoleID = "contract_administrator"
	RoleFinanceManager        RoleID = "finance_manager"
	RoleOperationsManager     RoleID = "operations_manager"
	RoleProcurementSpecialist RoleID = "procurement_specialist"
	RoleProductionTechnician  RoleID = "production_technician"
	RoleQualityInspector      RoleID = "quality_inspector"
	RoleLogisticsCoordinator  RoleID = "logistics_coordinator"
	RoleInstallationManager   RoleID = "installation_manager"
	RoleFieldTechnician       RoleID = "field_technician"
	RoleITSpecialist          RoleID = "it_specialist"
	RoleAccountManager        RoleID = "account_manager"
	RoleAdmin                 RoleID = "admin"
)

// AllStages is the wildcard entry of a StageSet.
const AllStages StageID = "*"

// StageSet is a set of stage ids. The AllStages wildcard matches every stage.
type StageSet map[StageID]bool

// NewStageSet builds a StageSet from the given ids.
func NewStageSet(ids ...StageID) StageSet {
	s := make(StageSet, len(ids))
	for _, id := range ids {
		s[id] = true
	}
	return s
}

// Has returns true if the set contains the stage or the wildcard.
func (s StageSet) Has(id StageID) bool {
	return s[id] || s[AllStages]
}

// Clone returns an independent copy of the set.
func (s StageSet) Clone() StageSet {
	if s == nil {
		return nil
	}
	out := make(StageSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Permissions is the permission set attached to a role.
type Permissions struct {
	CanView    StageSet `json:"can_view" yaml:"can_view"`
	CanEdit    StageSet `json:"can_edit" yaml:"can_edit"`
	CanAdvance StageSet `json:"can_advance" yaml:"can_advance"`
	CanAssign  bool     `json:"can_assign" yaml:"can_assign"`
}

// Clone returns a deep copy so that later catalog edits never reach users
// that copied the permissions at creation time.
func (p Permissions) Clone() Permissions {
	return Permissions{
		CanView:    p.CanView.Clone(),
		CanEdit:    p.CanEdit.Clone(),
		CanAdvance: p.CanAdvance.Clone(),
		CanAssign:  p.CanAssign,
	}
}

// RoleDefinition describes a role and its permissions.
type RoleDefinition struct {
	ID          RoleID      `json:"id" yaml:"id"`
	Name        string      `json:"name" yaml:"name"`
	Department  string      `json:"department" yaml:"department"`
	Permissions Permissions `json:"permissions" yaml:"permissions"`
	Dashboard   string      `json:"dashboard" yaml:"dashboard"`
}
