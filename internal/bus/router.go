package bus

import (
	"sort"
	"strings"
)

// Rule describes one routing condition set. All non-empty fields are
// ANDed; an empty field is not evaluated (matches anything).
type Rule struct {
	Priority        int
	AgentID         string
	ChannelType     string
	UserID          string
	MessageContains string
	TaskPrefix      string
	CapabilityName  string
}

// RouteRequest is the subset of an inbound request the Router matches
// rules against.
type RouteRequest struct {
	ChannelType    string
	UserID         string
	Message        string
	Task           string
	CapabilityName string
}

// Router evaluates rules in ascending priority and returns the first
// matching agent id.
type Router struct {
	rules       []Rule
	defaultAgent string
}

// NewRouter constructs a Router with the given default agent, used
// when no rule matches.
func NewRouter(defaultAgent string) *Router {
	return &Router{defaultAgent: defaultAgent}
}

// AddRule registers a routing rule. Rules are kept sorted by
// ascending Priority internally so Route always evaluates them in
// that order regardless of insertion order.
func (r *Router) AddRule(rule Rule) {
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool {
		return r.rules[i].Priority < r.rules[j].Priority
	})
}

// Route returns the first matching rule's AgentID, or the router's
// default agent if no rule matches.
func (r *Router) Route(req RouteRequest) string {
	for _, rule := range r.rules {
		if ruleMatches(rule, req) {
			return rule.AgentID
		}
	}
	return r.defaultAgent
}

func ruleMatches(rule Rule, req RouteRequest) bool {
	if rule.ChannelType != "" && rule.ChannelType != req.ChannelType {
		return false
	}
	if rule.UserID != "" && rule.UserID != req.UserID {
		return false
	}
	if rule.MessageContains != "" && !strings.Contains(req.Message, rule.MessageContains) {
		return false
	}
	if rule.TaskPrefix != "" && !strings.HasPrefix(req.Task, rule.TaskPrefix) {
		return false
	}
	if rule.CapabilityName != "" && rule.CapabilityName != req.CapabilityName {
		return false
	}
	return true
}
