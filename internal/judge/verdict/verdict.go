// Package verdict maps recorded run outcomes to judge results.
package verdict

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
)

// SpjVerdict is the recorded outcome of a special judge run against
// one test case.
type SpjVerdict int

const (
	SpjAccepted SpjVerdict = iota
	SpjWrongAnswer
	SpjFailed
)

// Outcome is everything the classifier needs about one finished run.
// It carries only recorded facts so a stored outcome always
// reclassifies to the same verdict.
type Outcome struct {
	Run            result.RunResult
	ExpectedOutput []byte
	UserOutput     []byte
	// Spj, when set, replaces the byte comparison.
	Spj *SpjVerdict
}

// Classify turns one outcome into a result code and error kind.
// Resource verdicts take precedence over answer verdicts, and a
// special judge failure outranks the answer it failed to produce.
func Classify(o Outcome) (model.ResultCode, model.ErrorKind) {
	switch o.Run.Status {
	case result.StatusCPULimit:
		return model.ResultCPUTimeLimitExceeded, model.ErrorNone
	case result.StatusRealLimit:
		return model.ResultRealTimeLimitExceeded, model.ErrorNone
	case result.StatusMemoryLimit:
		return model.ResultMemoryLimitExceeded, model.ErrorNone
	case result.StatusSignaled:
		return model.ResultRuntimeError, model.ErrorNone
	}
	// Output cut off at the capture cap can no longer be compared, so
	// it is never accepted as a correct answer.
	if o.Run.OutputTruncated {
		return model.ResultRuntimeError, model.ErrorNone
	}
	if o.Run.ExitCode != 0 {
		return model.ResultRuntimeError, model.ErrorNone
	}
	if o.Spj != nil {
		switch *o.Spj {
		case SpjAccepted:
			return model.ResultSuccess, model.ErrorNone
		case SpjWrongAnswer:
			return model.ResultWrongAnswer, model.ErrorNone
		default:
			return model.ResultSystemError, model.ErrorSPJ
		}
	}
	if bytes.Equal(Normalize(o.UserOutput), Normalize(o.ExpectedOutput)) {
		return model.ResultSuccess, model.ErrorNone
	}
	return model.ResultWrongAnswer, model.ErrorNone
}

// Normalize strips trailing whitespace from every line and trailing
// newlines from the whole output, so presentation-only differences do
// not flip an answer.
func Normalize(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	lines := bytes.Split(data, []byte{'\n'})
	for i, line := range lines {
		lines[i] = bytes.TrimRight(line, " \t\r")
	}
	out := bytes.Join(lines, []byte{'\n'})
	out = bytes.TrimRight(out, "\n")
	if len(out) == 0 {
		return nil
	}
	return out
}

// OutputHash is the hex sha256 of the normalized output.
func OutputHash(data []byte) string {
	sum := sha256.Sum256(Normalize(data))
	return hex.EncodeToString(sum[:])
}
