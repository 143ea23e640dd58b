package domain

// ActionResult is the optimizer output for one action. The summary fields
// describe the latest hour of the window and are nil when the run fell back
// to the uniform distribution.
type ActionResult struct {
	Config        ConfigCombo `json:"config"`
	ProbToWin     float64     `json:"prob_to_win"`
	NumTrials     *int        `json:"num_trials"`
	NumWins       *int        `json:"num_wins"`
	LogPubrevMean *float64    `json:"log_pubrev_mean"`
	LogPubrevStd  *float64    `json:"log_pubrev_std"`
}

// Distributions is the full result of one optimizer run.
type Distributions struct {
	Actions          []ActionResult `json:"actions"`
	InsufficientData bool           `json:"insufficient_data"`
}

// ActionProbability is the reduced per-action view.
type ActionProbability struct {
	Config    ConfigCombo `json:"config"`
	ProbToWin float64     `json:"prob_to_win"`
}

// DistributionSet is the payload consumed by the runtime configuration system.
type DistributionSet struct {
	Actions []ActionProbability `json:"actions"`
}

// Reduce drops the reporting fields and keeps only (config, prob_to_win).
func (d Distributions) Reduce() DistributionSet {
	out := DistributionSet{Actions: make([]ActionProbability, 0, len(d.Actions))}
	for _, a := range d.Actions {
		out.Actions = append(out.Actions, ActionProbability{
			Config:    a.Config,
			ProbToWin: a.ProbToWin,
		})
	}
	return out
}
