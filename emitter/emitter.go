// Package emitter appends the generated pytest functions to a test file.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/oxhq/testgap/core"
	"github.com/oxhq/testgap/internal/console"
)

// Marker is the first test defined by the generated block
const Marker = "def test_validate_user_data_required("

const generatedTests = `
# AI-GENERATED TESTS
def test_validate_user_data_required(self):
    with pytest.raises(ValueError, match="User data is required"):
        self.service.validate_and_process_user(None)

def test_validate_email_required(self):
    user_data = {"email": "invalid"}
    with pytest.raises(ValueError, match="Valid email is required"):
        self.service.validate_and_process_user(user_data)

def test_admin_override_success(self):
    user_data = {"email": "admin@test.com", "role": "admin"}
    result = self.service.validate_and_process_user(user_data, admin_override=True)
    assert result["status"] == "admin_created"

def test_admin_invalid_role(self):
    user_data = {"email": "test@test.com", "role": "user"}
    with pytest.raises(PermissionError, match="Invalid admin role"):
        self.service.validate_and_process_user(user_data, admin_override=True)

def test_user_already_exists(self):
    self.mock_db.user_exists.return_value = True
    user_data = {"email": "test@test.com", "name": "Test User"}
    with pytest.raises(ValueError, match="User already exists"):
        self.service.validate_and_process_user(user_data)`

// GenerateTests returns the generated test block. It starts with a newline
// and has no trailing one.
func GenerateTests() string {
	return generatedTests
}

// Options change how CreateTestPR touches the test file
type Options struct {
	// Dedupe skips the append when the block is already in the file
	Dedupe bool
	// DryRun writes nothing and returns a unified diff instead
	DryRun bool
}

// Emitter appends generated tests through the atomic writer's lock
type Emitter struct {
	opts    Options
	writer  *core.AtomicWriter
	printer *console.Printer
	logger  *slog.Logger
}

func New(opts Options, writer *core.AtomicWriter, printer *console.Printer) *Emitter {
	if writer == nil {
		writer = core.NewAtomicWriter(core.DefaultAtomicConfig())
	}
	if printer == nil {
		printer = console.New(nil)
	}
	return &Emitter{
		opts:    opts,
		writer:  writer,
		printer: printer,
		logger:  slog.Default(),
	}
}

// CreateTestPR appends the generated block to testPath, creating the file if
// needed. It returns the appended block, the diff in dry-run mode, or "" when
// a dedupe skip happened.
func (e *Emitter) CreateTestPR(ctx context.Context, testPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	block := GenerateTests()

	if e.opts.Dedupe || e.opts.DryRun {
		current, err := readOptional(testPath)
		if err != nil {
			return "", err
		}

		if e.opts.Dedupe && strings.Contains(current, Marker) {
			e.logger.InfoContext(ctx, "generated tests already present", "path", testPath)
			e.printer.Printf("Generated tests already present in %s, skipping\n", testPath)
			return "", nil
		}

		if e.opts.DryRun {
			diff, err := Diff(current, current+block, testPath)
			if err != nil {
				return "", err
			}
			e.printer.Printf("%s", diff)
			e.printer.Printf("[DRY-RUN] %s not modified\n", testPath)
			return diff, nil
		}
	}

	if err := e.writer.AppendFile(testPath, []byte(block)); err != nil {
		return "", err
	}
	e.logger.DebugContext(ctx, "generated tests appended", "path", testPath, "bytes", len(block))

	e.printer.Pass("Test-only PR created with generated tests")
	return block, nil
}

// Diff renders a unified diff between two versions of path
func Diff(before, after, path string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	return text, nil
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
