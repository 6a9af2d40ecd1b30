package types

// Column names after the loader's rename step. These are the parameter names
// bound into the row upsert statement.
const (
	ColSRRefNo               = "SR_ref_no"
	ColSRDate                = "SR_date"
	ColCommissionDate        = "commission_date"
	ColMachineModel          = "machine_model"
	ColSerialNumber          = "serial_number"
	ColComponentSerialNumber = "component_serial_number"
	ColSubAssembly           = "sub_assembly"
	ColProblem               = "problem"
	ColProblemSummary        = "problem_summary"
	ColProblemReported       = "problem_reported"
	ColFailureMode           = "failure_mode"
	ColCause                 = "cause"
	ColCorrectiveAction      = "corrective_action"
	ColProductCategory       = "product_category"
	ColAssignedAccount       = "assigned_account"
	ColName                  = "Name"
	ColTypeOfActivity        = "type_of_activity"
	ColDefectNo              = "defect_no"
	ColMake                  = "make"
	ColComplaintCategory     = "complaint_category"
)

// Columns lists every column a ServiceRecord carries, in canonical order.
var Columns = []string{
	ColSRRefNo,
	ColSRDate,
	ColCommissionDate,
	ColMachineModel,
	ColSerialNumber,
	ColComponentSerialNumber,
	ColSubAssembly,
	ColProblem,
	ColProblemSummary,
	ColProblemReported,
	ColFailureMode,
	ColCause,
	ColCorrectiveAction,
	ColProductCategory,
	ColAssignedAccount,
	ColName,
	ColTypeOfActivity,
	ColDefectNo,
	ColMake,
	ColComplaintCategory,
}

// ServiceRecord is one row of the service-history dataset. Absent values are
// always the empty string.
type ServiceRecord struct {
	SRRefNo               string `json:"SR_ref_no"`
	SRDate                string `json:"SR_date"`
	CommissionDate        string `json:"commission_date"`
	MachineModel          string `json:"machine_model"`
	SerialNumber          string `json:"serial_number"`
	ComponentSerialNumber string `json:"component_serial_number"`
	SubAssembly           string `json:"sub_assembly"`
	Problem               string `json:"problem"`
	ProblemSummary        string `json:"problem_summary"`
	ProblemReported       string `json:"problem_reported"`
	FailureMode           string `json:"failure_mode"`
	Cause                 string `json:"cause"`
	CorrectiveAction      string `json:"corrective_action"`
	ProductCategory       string `json:"product_category"`
	AssignedAccount       string `json:"assigned_account"`
	Name                  string `json:"Name"`
	TypeOfActivity        string `json:"type_of_activity"`
	DefectNo              string `json:"defect_no"`
	Make                  string `json:"make"`
	ComplaintCategory     string `json:"complaint_category"`
}

// fields returns pointers to the record's fields in Columns order.
func (r *ServiceRecord) fields() []*string {
	return []*string{
		&r.SRRefNo,
		&r.SRDate,
		&r.CommissionDate,
		&r.MachineModel,
		&r.SerialNumber,
		&r.ComponentSerialNumber,
		&r.SubAssembly,
		&r.Problem,
		&r.ProblemSummary,
		&r.ProblemReported,
		&r.FailureMode,
		&r.Cause,
		&r.CorrectiveAction,
		&r.ProductCategory,
		&r.AssignedAccount,
		&r.Name,
		&r.TypeOfActivity,
		&r.DefectNo,
		&r.Make,
		&r.ComplaintCategory,
	}
}

// Params binds every column to its statement parameter. Every key is present.
func (r ServiceRecord) Params() map[string]any {
	params := make(map[string]any, len(Columns))
	for i, f := range r.fields() {
		params[Columns[i]] = *f
	}
	return params
}

// Values returns the field values in Columns order.
func (r ServiceRecord) Values() []string {
	fields := r.fields()
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = *f
	}
	return out
}

// Field returns the value of a renamed column.
func (r ServiceRecord) Field(column string) (string, bool) {
	idx := columnIndex(column)
	if idx < 0 {
		return "", false
	}
	return *r.fields()[idx], true
}

// Set assigns a renamed column. It reports false for unknown columns.
func (r *ServiceRecord) Set(column, value string) bool {
	idx := columnIndex(column)
	if idx < 0 {
		return false
	}
	*r.fields()[idx] = value
	return true
}

func columnIndex(column string) int {
	for i, c := range Columns {
		if c == column {
			return i
		}
	}
	return -1
}
