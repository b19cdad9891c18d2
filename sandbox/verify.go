package sandbox

// Verify compares actual stdout lines with the expected lines of test. Lines
// must match exactly and in order, trailing whitespace included.
func Verify(test Test, actual []string) TestResult {
	if FirstMismatch(test.ExpectedStdoutLines, actual) >= 0 {
		return TestFailed
	}
	return TestPassed
}

// FirstMismatch returns the index of the first differing line, or -1 when
// both sequences are identical. A missing line counts as differing.
func FirstMismatch(expected, actual []string) int {
	n := min(len(expected), len(actual))
	for i := 0; i < n; i++ {
		if expected[i] != actual[i] {
			return i
		}
	}
	if len(expected) != len(actual) {
		return n
	}
	return -1
}

// scoreTest decides the verdict of an attached test once execution is over.
// A test without expected output passes when the program succeeded. An io
// failure leaves the verdict unknown.
func scoreTest(test *Test, status Status, stdout []string) TestResult {
	switch status {
	case StatusSucceeded:
	case StatusIOError:
		return TestNotRun
	default:
		return TestFailed
	}
	if test.ExpectedStdoutLines == nil {
		return TestPassed
	}
	return Verify(*test, stdout)
}
