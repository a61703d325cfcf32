package pipeline

// Update is the partial result a stage hands back. Nil scalar pointers leave
// the current value alone; Fixes and Iterations are deltas.
type Update struct {
	RepoPath      *string
	RepoStructure *string
	Language      *string
	InstallCmd    *string
	TestCmd       *string
	TestScore     *int
	ErrorLog      *string
	FinalStatus   *Status

	Fixes      []FixRecord
	Iterations int
}

// Set returns a pointer to v for building Updates.
func Set[T any](v T) *T {
	return &v
}

// Merge folds u into s and returns the result. s is not modified.
//
// Scalars use Replace (last write wins), Fixes uses AppendFixes and
// Iterations uses AddIterations. Applying the same Update twice is therefore
// idempotent for scalars but grows Fixes and Iterations twice.
func (s RunState) Merge(u Update) RunState {
	out := s
	out.RepoPath = Replace(s.RepoPath, u.RepoPath)
	out.RepoStructure = Replace(s.RepoStructure, u.RepoStructure)
	out.Language = Replace(s.Language, u.Language)
	out.InstallCmd = Replace(s.InstallCmd, u.InstallCmd)
	out.TestCmd = Replace(s.TestCmd, u.TestCmd)
	out.TestScore = Replace(s.TestScore, u.TestScore)
	out.ErrorLog = Replace(s.ErrorLog, u.ErrorLog)
	out.FinalStatus = Replace(s.FinalStatus, u.FinalStatus)
	out.Fixes = AppendFixes(s.Fixes, u.Fixes)
	out.Iterations = AddIterations(s.Iterations, u.Iterations)
	return out
}

// Replace is the last-write-wins reducer.
func Replace[T any](cur T, next *T) T {
	if next == nil {
		return cur
	}
	return *next
}

// AppendFixes is the append reducer for the fix history. It always returns a
// fresh slice so earlier states never share a backing array with later ones.
func AppendFixes(cur, next []FixRecord) []FixRecord {
	out := make([]FixRecord, 0, len(cur)+len(next))
	out = append(out, cur...)
	return append(out, next...)
}

// AddIterations is the accumulate reducer for the failure counter. Negative
// deltas are ignored: the counter never goes down.
func AddIterations(cur, delta int) int {
	if delta < 0 {
		return cur
	}
	return cur + delta
}
