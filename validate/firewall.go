package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// firewallRulePattern recognizes the shape of the firewall DSL's top-level
// clause: "FROM <target> TO <target> ALLOW|BLOCK <proto> [PORT <n>]".
// It is a recognizer, not a full grammar: a rule that does not match is
// reported as "Invalid rule: <the whole trimmed rule>", without naming a
// clause, and FWAPI's own parser is not reimplemented (FWAPI is the
// authority; this just rejects obviously malformed rules before a job is
// ever created).
var firewallRulePattern = regexp.MustCompile(
	`(?i)^FROM\s+(.+?)\s+TO\s+(.+?)\s+(ALLOW|BLOCK)\s+(tcp|udp|icmp|all)(\s+(PORT|PORTS)\s+[\d,\s-]+)?$`,
)

// validateFirewallRules validates a firewall_rules[] array, returning
// FieldErrors for every malformed entry.
func validateFirewallRules(rules []FirewallRuleParam) []FieldError {
	var errs []FieldError
	for i, r := range rules {
		if !isUUID(r.UUID) {
			errs = append(errs, FieldError{Field: fmt.Sprintf("firewall_rules[%d].uuid", i), Code: "Invalid", Message: "rule uuid must be a valid uuid"})
		}
		if !isUUID(r.OwnerUUID) {
			errs = append(errs, FieldError{Field: fmt.Sprintf("firewall_rules[%d].owner_uuid", i), Code: "Invalid", Message: "rule owner_uuid must be a valid uuid"})
		}
		if r.Global {
			errs = append(errs, FieldError{Field: fmt.Sprintf("firewall_rules[%d].global", i), Code: "Invalid", Message: "global rules may not be set through this surface"})
		}
		if err := validateRuleString(r.Rule); err != nil {
			errs = append(errs, FieldError{Field: fmt.Sprintf("firewall_rules[%d].rule", i), Code: "Invalid", Message: err.Error()})
		}
	}
	return errs
}

func validateRuleString(rule string) error {
	trimmed := strings.TrimSpace(rule)
	if trimmed == "" {
		return fmt.Errorf("Invalid rule: empty rule")
	}
	if !firewallRulePattern.MatchString(trimmed) {
		return fmt.Errorf("Invalid rule: %s", trimmed)
	}
	return nil
}
