package hosting

import (
	"encoding/json"
	"strings"
)

// Envelope is the common response wrapper of the hosting API.
type Envelope struct {
	Success bool            `json:"success"`
	Errors  []APIError      `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// APIError is one error entry of a failed response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorText joins all error messages for logging.
func (e Envelope) ErrorText() string {
	if len(e.Errors) == 0 {
		return "unknown error"
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		msgs = append(msgs, apiErr.Message)
	}
	return strings.Join(msgs, "; ")
}

// Project is a hosting project, addressed by name.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeploymentRequest is the publish payload: the complete path→content map
// plus the target branch.
type DeploymentRequest struct {
	Manifest map[string]string `json:"manifest"`
	Branch   string            `json:"branch"`
}

// Deployment is the hosting platform's view of one published deployment.
type Deployment struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Rule is a post-deploy routing rule (e.g. 404→home, www→bare-domain).
type Rule struct {
	Targets  []RuleTarget `json:"targets"`
	Actions  []RuleAction `json:"actions"`
	Priority int          `json:"priority"`
	Status   string       `json:"status"`
}

// RuleTarget selects the URLs a rule applies to.
type RuleTarget struct {
	Target     string         `json:"target"`
	Constraint RuleConstraint `json:"constraint"`
}

// RuleConstraint is the match expression of a rule target.
type RuleConstraint struct {
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// RuleAction is the effect of a matched rule.
type RuleAction struct {
	ID    string          `json:"id"`
	Value RuleActionValue `json:"value"`
}

// RuleActionValue carries the forwarding destination.
type RuleActionValue struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}
