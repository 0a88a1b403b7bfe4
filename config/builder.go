package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/jpalmerr/pulsewatch/internal/poller"
	"github.com/jpalmerr/pulsewatch/service"
)

// BuildTargets converts the checker section into probe targets.
//
// It processes both direct checks and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product. Names must be unique
// across the result.
func BuildTargets(ch *CheckerConfig) ([]poller.Target, error) {
	if ch == nil {
		return nil, fmt.Errorf("checker section is missing")
	}

	var targets []poller.Target
	for _, cc := range ch.Checks {
		targets = append(targets, buildTarget(ch, cc))
	}

	for _, gc := range ch.Grids {
		gridTargets, err := buildGridTargets(ch, gc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, gridTargets...)
	}

	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate service name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	return targets, nil
}

// buildTarget converts a single CheckConfig, inheriting checker defaults.
func buildTarget(ch *CheckerConfig, cc CheckConfig) poller.Target {
	description := cc.Description
	if description == "" {
		description = cc.Name
	}

	t := poller.Target{
		Name: cc.Name,
		Spec: service.Spec{
			Description: description,
			URL:         cc.URL,
			Group:       cc.Group,
		},
		URL:      cc.URL,
		Method:   cc.Method,
		Headers:  cc.Headers,
		Timeout:  ch.Timeout.Duration(),
		Interval: ch.Interval.Duration(),
	}
	if cc.Timeout != 0 {
		t.Timeout = cc.Timeout.Duration()
	}
	if cc.Interval != 0 {
		t.Interval = cc.Interval.Duration()
	}
	if len(cc.ExpectStatus) > 0 {
		t.Classifier = poller.ExpectStatus(cc.ExpectStatus...)
	}
	return t
}

// buildGridTargets expands a GridConfig into one target per combination.
func buildGridTargets(ch *CheckerConfig, gc GridConfig) ([]poller.Target, error) {
	// use missingkey=error to fail fast on missing template variables
	tmpl, err := template.New("url").Option("missingkey=error").Parse(gc.URLTemplate)
	if err != nil {
		return nil, err
	}

	var targets []poller.Target
	for _, combo := range cartesianProduct(gc.Dimensions) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, combo); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", gc.Name, combo, err)
		}
		probeURL := buf.String()
		if err := validateHTTPURL(probeURL); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: %w", gc.Name, combo, err)
		}

		values := comboValues(combo)
		description := gc.Description
		if description == "" {
			description = gc.Name
		}

		targets = append(targets, buildTarget(ch, CheckConfig{
			Name:         gc.Name + "-" + strings.Join(values, "-"),
			Description:  description + " (" + strings.Join(values, ", ") + ")",
			Group:        gc.Group,
			URL:          probeURL,
			Method:       gc.Method,
			Headers:      gc.Headers,
			Timeout:      gc.Timeout,
			Interval:     gc.Interval,
			ExpectStatus: gc.ExpectStatus,
		}))
	}

	return targets, nil
}

// comboValues returns the combination's values ordered by dimension name.
func comboValues(combo map[string]string) []string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys))
	for _, k := range keys {
		values = append(values, combo[k])
	}
	return values
}

// cartesianProduct generates all combinations of dimension values.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	// sort dimension keys for deterministic ordering
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// start with single empty combination
	result := []map[string]string{{}}

	for _, key := range keys {
		var next []map[string]string
		for _, combo := range result {
			for _, val := range dimensions[key] {
				extended := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					extended[k] = v
				}
				extended[key] = val
				next = append(next, extended)
			}
		}
		result = next
	}

	return result
}
