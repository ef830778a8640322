package httpapi

import (
	"fmt"

	"botfleet/internal/core"

	"github.com/robfig/cron/v3"
)

// CronJob is one entry of the bot-facing ConfigPayload's cron_jobs list.
type CronJob struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Message  string `json:"message"`
}

// algorithmIntervalMins derives the algorithm-run cadence from strictness:
// widest for conservative, narrowest for aggressive, per generate_cron_jobs
// in the original control-plane's sync handler.
var algorithmIntervalMins = map[core.Strictness]int{
	core.StrictnessConservative: 15,
	core.StrictnessModerate:     5,
	core.StrictnessAggressive:   1,
}

// riskCheckIntervalMins runs at or below the algorithm cadence for every
// strictness (equal at aggressive, where both are 1 minute), so risk checks
// never lag a widened algorithm interval.
var riskCheckIntervalMins = map[core.Strictness]int{
	core.StrictnessConservative: 5,
	core.StrictnessModerate:     2,
	core.StrictnessAggressive:   1,
}

// generateCronJobs derives the five named schedule-table entries
// (config-poll, data-fetch, algorithm, heartbeat, risk-check) from
// (strictness, algorithm_mode), so two workers given the same config
// schedule identically (spec §4.1).
func generateCronJobs(strictness core.Strictness, algo core.AlgorithmMode) ([]CronJob, error) {
	algoMins, ok := algorithmIntervalMins[strictness]
	if !ok {
		algoMins = algorithmIntervalMins[core.StrictnessModerate]
	}
	riskMins, ok := riskCheckIntervalMins[strictness]
	if !ok {
		riskMins = riskCheckIntervalMins[core.StrictnessModerate]
	}

	jobs := []CronJob{
		{Name: "config-poll", Schedule: fmt.Sprintf("*/1 * * * *"), Message: "poll desired configuration"},
		{Name: "data-fetch", Schedule: fmt.Sprintf("*/1 * * * *"), Message: "refresh market data cache"},
		{Name: "algorithm", Schedule: fmt.Sprintf("*/%d * * * *", algoMins), Message: fmt.Sprintf("run %s decision cycle", algo)},
		{Name: "heartbeat", Schedule: fmt.Sprintf("*/1 * * * *"), Message: "report liveness"},
		{Name: "risk-check", Schedule: fmt.Sprintf("*/%d * * * *", riskMins), Message: "evaluate risk caps"},
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, j := range jobs {
		if _, err := parser.Parse(j.Schedule); err != nil {
			return nil, fmt.Errorf("generated cron expression %q for job %s is invalid: %w", j.Schedule, j.Name, err)
		}
	}
	return jobs, nil
}
