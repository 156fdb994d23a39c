package gaps

import (
	"slices"

	"github.com/oxhq/testgap/core"
)

// ProbeFunction is the function the built-in table knows about
const ProbeFunction = "validate_and_process_user"

// Entry is the fixed gap taxonomy for one function
type Entry struct {
	Gaps  []string
	Tests []core.TestDescriptor
}

// Table maps a function name to its gap taxonomy. It is a lookup, not an
// analysis: the entries do not depend on the function body.
type Table map[string]Entry

// DefaultTable returns the built-in table
func DefaultTable() Table {
	return Table{
		ProbeFunction: {
			Gaps: []string{
				"Branch: Input validation (user_data is None)",
				"Branch: Email validation (missing/invalid email)",
				"Branch: Admin override path",
				"Error path: Invalid admin role",
				"Error path: User already exists",
			},
			Tests: []core.TestDescriptor{
				{
					Name:        "test_validate_user_data_required",
					Description: "Test ValueError when user_data is None",
					MockSetup:   "None",
					Assertion:   "pytest.raises(ValueError, match='User data is required')",
				},
				{
					Name:        "test_validate_email_required",
					Description: "Test ValueError for invalid email",
					MockSetup:   "user_data = {'email': 'invalid'}",
					Assertion:   "pytest.raises(ValueError, match='Valid email is required')",
				},
				{
					Name:        "test_admin_override_success",
					Description: "Test successful admin user processing",
					MockSetup:   "user_data = {'email': 'admin@test.com', 'role': 'admin'}",
					Assertion:   "result['status'] == 'admin_created'",
				},
				{
					Name:        "test_admin_invalid_role",
					Description: "Test PermissionError for invalid admin role",
					MockSetup:   "user_data = {'email': 'test@test.com', 'role': 'user'}",
					Assertion:   "pytest.raises(PermissionError, match='Invalid admin role')",
				},
				{
					Name:        "test_user_already_exists",
					Description: "Test ValueError when user exists",
					MockSetup:   "self.mock_db.user_exists.return_value = True",
					Assertion:   "pytest.raises(ValueError, match='User already exists')",
				},
			},
		},
	}
}

// Lookup returns a fresh report for name. Callers may mutate the result.
func (t Table) Lookup(name string) (core.GapReport, bool) {
	entry, ok := t[name]
	if !ok {
		return core.EmptyGapReport(), false
	}
	report := core.GapReport{
		Gaps:          slices.Clone(entry.Gaps),
		ProposedTests: slices.Clone(entry.Tests),
	}
	if report.Gaps == nil {
		report.Gaps = []string{}
	}
	if report.ProposedTests == nil {
		report.ProposedTests = []core.TestDescriptor{}
	}
	return report, true
}
