package model

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// JobConfigFile is the per-repository pipeline configuration file, loaded
// from the working directory during the git_prepare stage.
const JobConfigFile = ".slipway.yml"

// JobConfig is per-repo build configuration. All fields are optional; the
// zero value builds ./Dockerfile, runs the image's "ci" command as the test,
// and provisions nothing.
type JobConfig struct {
	Dockerfile  string   `yaml:"dockerfile,omitempty"`
	SkipTests   bool     `yaml:"skip_tests,omitempty"`
	TestCommand []string `yaml:"test_command,omitempty"`

	// Services maps image references to per-service settings; each is
	// pulled, started before the build, and linked into the test stage
	// under its alias.
	Services map[string]ServiceConfig `yaml:"services,omitempty"`

	// Utilities are auxiliary containers (databases etc) provisioned for
	// the test stage and linked by alias.
	Utilities []UtilityConfig `yaml:"utilities,omitempty"`

	// JobOutput maps artifact names to container paths fetched into the
	// job's output directory as <name>.tar after tests.
	JobOutput map[string]string `yaml:"job_output,omitempty"`
}

type ServiceConfig struct {
	Alias       string   `yaml:"alias,omitempty"`
	Command     []string `yaml:"command,omitempty"`
	Environment []string `yaml:"environment,omitempty"`
}

type UtilityConfig struct {
	Name        string   `yaml:"name"`
	Image       string   `yaml:"image"`
	Alias       string   `yaml:"alias,omitempty"`
	Command     []string `yaml:"command,omitempty"`
	Environment []string `yaml:"environment,omitempty"`
}

// ParseJobConfig decodes a job config from its YAML bytes.
func ParseJobConfig(content []byte) (*JobConfig, error) {
	var config JobConfig
	if err := yaml.Unmarshal(content, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// UtilitySlugSuffixes turns utility names into unique slug suffixes by
// adding a counter to duplicates, so two declared "redis" utilities become
// redis_1 and redis_2.
func UtilitySlugSuffixes(names []string) []string {
	totals := make(map[string]int)
	for _, name := range names {
		totals[name]++
	}

	counters := make(map[string]int)
	suffixes := make([]string, 0, len(names))
	for _, name := range names {
		if totals[name] > 1 {
			counters[name]++
			suffixes = append(suffixes,
				name+"_"+strconv.Itoa(counters[name]))
		} else {
			suffixes = append(suffixes, name)
		}
	}
	return suffixes
}
