package toolset

import "context"

// Outcome of one candidate in a fallback chain.
type Outcome int

const (
	NotAttempted Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "not_attempted"
	}
}

// Candidate is one strategy in an ordered fallback chain.
type Candidate struct {
	Name string
	Run  func(ctx context.Context) error
}

// Attempt records what happened to a candidate.
type Attempt struct {
	Name    string
	Outcome Outcome
	Err     error
}

// ChainResult is the per-candidate record of a chain run.
type ChainResult struct {
	Attempts []Attempt
}

// Winner returns the candidate that succeeded, if any.
func (c ChainResult) Winner() (string, bool) {
	for _, a := range c.Attempts {
		if a.Outcome == Succeeded {
			return a.Name, true
		}
	}
	return "", false
}

// runChain tries candidates in order and stops at the first success. A
// cancelled context stops the chain and leaves the rest NotAttempted.
func runChain(ctx context.Context, candidates []Candidate) ChainResult {
	res := ChainResult{Attempts: make([]Attempt, len(candidates))}
	for i, c := range candidates {
		res.Attempts[i] = Attempt{Name: c.Name}
	}
	for i, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if err := c.Run(ctx); err != nil {
			res.Attempts[i].Outcome = Failed
			res.Attempts[i].Err = err
			continue
		}
		res.Attempts[i].Outcome = Succeeded
		break
	}
	return res
}
