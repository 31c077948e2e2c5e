// Package lang validates language configurations and expands
// compile/run command templates.
package lang

import (
	"regexp"
	"strings"

	"github.com/google/shlex"

	"judged/internal/judge/model"
	appErr "judged/pkg/errors"
)

// Placeholder slot names accepted in command templates. Templates are
// checked against this closed set when a request is accepted, so an
// unknown slot fails validation instead of surfacing mid-execution.
const (
	SlotSrcPath   = "src_path"
	SlotExePath   = "exe_path"
	SlotExeDir    = "exe_dir"
	SlotMaxMemory = "max_memory"

	SlotSpjPath         = "spj_path"
	SlotInFilePath      = "in_file_path"
	SlotUserOutFilePath = "user_out_file_path"
	SlotAnswerFilePath  = "answer_file_path"
)

var placeholderRe = regexp.MustCompile(`\{([a-z_]+)\}`)

// CompileSlots are the placeholders allowed in compile command templates.
var CompileSlots = []string{SlotSrcPath, SlotExePath, SlotExeDir, SlotMaxMemory}

// RunSlots are the placeholders allowed in run command templates.
var RunSlots = []string{SlotExePath, SlotExeDir, SlotMaxMemory}

// SpjRunSlots are the placeholders allowed in SPJ run command templates.
var SpjRunSlots = []string{SlotSpjPath, SlotExeDir, SlotMaxMemory, SlotInFilePath, SlotUserOutFilePath, SlotAnswerFilePath}

// ValidateTemplate checks that every placeholder in tpl belongs to the
// allowed slot set.
func ValidateTemplate(tpl string, allowed []string) error {
	if strings.TrimSpace(tpl) == "" {
		return appErr.ValidationError("command", "required")
	}
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, slot := range allowed {
		allowedSet[slot] = struct{}{}
	}
	for _, match := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		if _, ok := allowedSet[match[1]]; !ok {
			return appErr.Newf(appErr.InvalidRequest, "unknown placeholder {%s} in command template", match[1])
		}
	}
	return nil
}

// ExpandCommand substitutes slot values into tpl and splits the result
// into argv. Every placeholder must have a value in slots.
func ExpandCommand(tpl string, slots map[string]string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidRequest).WithMessage("command template is required")
	}
	expanded := tpl
	for name, value := range slots {
		expanded = strings.ReplaceAll(expanded, "{"+name+"}", value)
	}
	if match := placeholderRe.FindStringSubmatch(expanded); match != nil {
		return nil, appErr.Newf(appErr.InvalidRequest, "unresolved placeholder {%s} in command template", match[1])
	}
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidRequest, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidRequest).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// ValidateLanguageConfig checks a language config for internal
// consistency before any execution happens.
func ValidateLanguageConfig(cfg model.LanguageConfig) error {
	if cfg.Compile != nil {
		if err := validateCompileConfig(cfg.Compile.SrcName, cfg.Compile.ExeName, cfg.Compile.CompileCommand, cfg.Compile.MaxCPUTime, cfg.Compile.MaxRealTime, cfg.Compile.MaxMemory); err != nil {
			return err
		}
	}
	if err := ValidateTemplate(cfg.Run.Command, RunSlots); err != nil {
		return err
	}
	return nil
}

// ValidateSpjCompileConfig checks an SPJ compile config.
func ValidateSpjCompileConfig(cfg model.SpjCompileConfig) error {
	return validateCompileConfig(cfg.SrcName, cfg.ExeName, cfg.CompileCommand, cfg.MaxCPUTime, cfg.MaxRealTime, cfg.MaxMemory)
}

// ValidateSpjConfig checks an SPJ run config.
func ValidateSpjConfig(cfg model.SpjConfig) error {
	return ValidateTemplate(cfg.Command, SpjRunSlots)
}

func validateCompileConfig(srcName, exeName, command string, maxCPUTime, maxRealTime, maxMemory int64) error {
	if srcName == "" {
		return appErr.ValidationError("src_name", "required")
	}
	if exeName == "" {
		return appErr.ValidationError("exe_name", "required")
	}
	if strings.Contains(srcName, "/") || strings.Contains(exeName, "/") {
		return appErr.New(appErr.InvalidRequest).WithMessage("file names must not contain path separators")
	}
	if maxCPUTime <= 0 || maxRealTime <= 0 || maxMemory <= 0 {
		return appErr.New(appErr.InvalidRequest).WithMessage("compile limits must be positive")
	}
	return ValidateTemplate(command, CompileSlots)
}
