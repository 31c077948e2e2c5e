// Package testcase resolves test-case sets, either from inline
// request payloads or from a prepared on-disk repository.
package testcase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"judged/internal/judge/model"
	appErr "judged/pkg/errors"
)

const manifestName = "info.json"

// Case points at the input and expected-output files of one test case.
// OutputPath is empty when the set is judged by a special judge only.
type Case struct {
	Name       string
	InputPath  string
	OutputPath string
}

// Repository resolves a test-case set identifier to its cases.
type Repository interface {
	Resolve(ctx context.Context, testCaseID string) ([]Case, error)
}

// manifest mirrors the info.json layout of a prepared test-case set.
type manifest struct {
	TestCaseNumber int                      `json:"test_case_number"`
	Spj            bool                     `json:"spj"`
	TestCases      map[string]manifestEntry `json:"test_cases"`
}

type manifestEntry struct {
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
}

// LocalRepository serves test-case sets stored under a root
// directory, one subdirectory per set with an info.json manifest.
type LocalRepository struct {
	root string
}

func NewLocalRepository(root string) (*LocalRepository, error) {
	if root == "" {
		return nil, appErr.ValidationError("test_case_dir", "required")
	}
	return &LocalRepository{root: root}, nil
}

func (r *LocalRepository) Resolve(ctx context.Context, testCaseID string) ([]Case, error) {
	if err := validateID(testCaseID); err != nil {
		return nil, err
	}
	dir := filepath.Join(r.root, testCaseID)
	return loadManifestDir(dir, testCaseID)
}

func validateID(testCaseID string) error {
	if testCaseID == "" {
		return appErr.ValidationError("test_case_id", "required")
	}
	if strings.ContainsAny(testCaseID, "/\\") || testCaseID == "." || testCaseID == ".." {
		return appErr.ValidationError("test_case_id", "invalid")
	}
	return nil
}

func loadManifestDir(dir, testCaseID string) ([]Case, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, appErr.Newf(appErr.TestCaseNotFound, "test case set %s not found", testCaseID)
		}
		return nil, appErr.Wrapf(err, appErr.TestCaseFetchFailed, "read manifest failed")
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "parse manifest failed")
	}
	if len(m.TestCases) == 0 {
		return nil, appErr.New(appErr.TestCaseInvalid).WithMessage("manifest lists no test cases")
	}

	names := make([]string, 0, len(m.TestCases))
	for name := range m.TestCases {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.Atoi(names[i])
		b, errB := strconv.Atoi(names[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return names[i] < names[j]
	})

	cases := make([]Case, 0, len(names))
	for _, name := range names {
		entry := m.TestCases[name]
		if entry.InputName == "" {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "test case %s has no input file", name)
		}
		inputPath := filepath.Join(dir, entry.InputName)
		if _, err := os.Stat(inputPath); err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "stat input file failed")
		}
		c := Case{Name: name, InputPath: inputPath}
		if entry.OutputName != "" {
			outputPath := filepath.Join(dir, entry.OutputName)
			if _, err := os.Stat(outputPath); err != nil {
				if !m.Spj {
					return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "stat output file failed")
				}
			} else {
				c.OutputPath = outputPath
			}
		} else if !m.Spj {
			return nil, appErr.Newf(appErr.TestCaseInvalid, "test case %s has no output file", name)
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// Materialize writes inline test cases into dir and returns them in
// request order. Names are one-based ordinals, matching prepared sets.
func Materialize(dir string, inline []model.TestCase) ([]Case, error) {
	if len(inline) == 0 {
		return nil, appErr.ValidationError("test_case", "required")
	}
	cases := make([]Case, 0, len(inline))
	for i, tc := range inline {
		name := strconv.Itoa(i + 1)
		inputPath := filepath.Join(dir, name+".in")
		if err := os.WriteFile(inputPath, []byte(tc.Input), 0644); err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeClientError, "write inline input failed")
		}
		c := Case{Name: name, InputPath: inputPath}
		if tc.Output != "" {
			outputPath := filepath.Join(dir, name+".out")
			if err := os.WriteFile(outputPath, []byte(tc.Output), 0644); err != nil {
				return nil, appErr.Wrapf(err, appErr.JudgeClientError, "write inline output failed")
			}
			c.OutputPath = outputPath
		}
		cases = append(cases, c)
	}
	return cases, nil
}
