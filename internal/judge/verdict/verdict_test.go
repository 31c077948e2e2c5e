package verdict

import (
	"testing"

	"judged/internal/judge/model"
	"judged/internal/judge/sandbox/result"
)

func TestClassifyResourceVerdicts(t *testing.T) {
	cases := []struct {
		status result.Status
		want   model.ResultCode
	}{
		{result.StatusCPULimit, model.ResultCPUTimeLimitExceeded},
		{result.StatusRealLimit, model.ResultRealTimeLimitExceeded},
		{result.StatusMemoryLimit, model.ResultMemoryLimitExceeded},
		{result.StatusSignaled, model.ResultRuntimeError},
	}
	for _, tc := range cases {
		code, kind := Classify(Outcome{
			Run:            result.RunResult{Status: tc.status},
			ExpectedOutput: []byte("42"),
			UserOutput:     []byte("42"),
		})
		if code != tc.want {
			t.Fatalf("status %v classified as %v, want %v", tc.status, code, tc.want)
		}
		if kind != model.ErrorNone {
			t.Fatalf("status %v produced error kind %v", tc.status, kind)
		}
	}
}

func TestClassifyNonZeroExitIsRuntimeError(t *testing.T) {
	code, _ := Classify(Outcome{
		Run:            result.RunResult{Status: result.StatusNormal, ExitCode: 1},
		ExpectedOutput: []byte("42"),
		UserOutput:     []byte("42"),
	})
	if code != model.ResultRuntimeError {
		t.Fatalf("non-zero exit classified as %v", code)
	}
}

func TestClassifyAnswerComparison(t *testing.T) {
	ok := Outcome{
		Run:            result.RunResult{Status: result.StatusNormal},
		ExpectedOutput: []byte("1 2 3\n"),
		UserOutput:     []byte("1 2 3   \n\n"),
	}
	if code, _ := Classify(ok); code != model.ResultSuccess {
		t.Fatalf("trailing whitespace flipped the verdict: %v", code)
	}

	wrong := ok
	wrong.UserOutput = []byte("1 2 4\n")
	if code, _ := Classify(wrong); code != model.ResultWrongAnswer {
		t.Fatalf("wrong answer classified as %v", code)
	}

	// Leading whitespace is significant.
	leading := ok
	leading.UserOutput = []byte("  1 2 3\n")
	if code, _ := Classify(leading); code != model.ResultWrongAnswer {
		t.Fatalf("leading whitespace accepted: %v", code)
	}
}

func TestClassifyTruncatedOutputIsNeverAccepted(t *testing.T) {
	// Both sides were cut at the capture cap, so the bytes match even
	// though the real output did not.
	code, _ := Classify(Outcome{
		Run:            result.RunResult{Status: result.StatusNormal, OutputTruncated: true},
		ExpectedOutput: []byte("1 2 3"),
		UserOutput:     []byte("1 2 3"),
	})
	if code != model.ResultRuntimeError {
		t.Fatalf("truncated output classified as %v, want runtime error", code)
	}
}

func TestClassifySpjVerdictReplacesComparison(t *testing.T) {
	base := Outcome{
		Run:            result.RunResult{Status: result.StatusNormal},
		ExpectedOutput: []byte("expected"),
		UserOutput:     []byte("totally different"),
	}

	accepted := SpjAccepted
	base.Spj = &accepted
	if code, kind := Classify(base); code != model.ResultSuccess || kind != model.ErrorNone {
		t.Fatalf("spj accept ignored: code=%v kind=%v", code, kind)
	}

	rejected := SpjWrongAnswer
	base.Spj = &rejected
	if code, _ := Classify(base); code != model.ResultWrongAnswer {
		t.Fatalf("spj reject ignored: %v", code)
	}

	failed := SpjFailed
	base.Spj = &failed
	code, kind := Classify(base)
	if code != model.ResultSystemError || kind != model.ErrorSPJ {
		t.Fatalf("spj failure must surface as system error with spj kind, got code=%v kind=%v", code, kind)
	}
}

func TestClassifyIsIdempotent(t *testing.T) {
	outcome := Outcome{
		Run:            result.RunResult{Status: result.StatusNormal},
		ExpectedOutput: []byte("a\nb\n"),
		UserOutput:     []byte("a \nb\n"),
	}
	first, _ := Classify(outcome)
	second, _ := Classify(outcome)
	if first != second {
		t.Fatalf("classification changed across calls: %v then %v", first, second)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]byte("a  \t\nb\r\n\n\n"))
	if string(got) != "a\nb" {
		t.Fatalf("Normalize = %q", got)
	}
	if Normalize(nil) != nil {
		t.Fatal("Normalize(nil) should be nil")
	}
	if Normalize([]byte("\n\n")) != nil {
		t.Fatal("whitespace-only input should normalize to nil")
	}
}

func TestOutputHashIgnoresTrailingWhitespace(t *testing.T) {
	a := OutputHash([]byte("hello\nworld\n"))
	b := OutputHash([]byte("hello  \nworld"))
	if a != b {
		t.Fatal("hash should be stable under normalization")
	}
	c := OutputHash([]byte("hello\nworlds"))
	if a == c {
		t.Fatal("different outputs must not collide")
	}
}
