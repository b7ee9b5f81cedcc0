package validate

import (
	"fmt"
	"strings"
)

// tritonTagType is the declared value type for one recognized triton.* tag.
type tritonTagType int

const (
	tritonTypeBool tritonTagType = iota
	tritonTypeString
	tritonTypeCNSServices
)

// tritonTags is the closed set of recognized triton.* tags and their
// declared value types, per spec.md §4.2. Unknown triton.* keys are
// rejected outright; known keys must match their declared type.
var tritonTags = map[string]tritonTagType{
	"triton.cns.services":                       tritonTypeCNSServices,
	"triton.cns.disable":                        tritonTypeBool,
	"triton.cns.reverse_ptr":                    tritonTypeString,
	"triton.placement.exclude_virtual_servers":  tritonTypeBool,
	"triton.placement.non_docker_nat_svc":       tritonTypeBool,
}

const dockerLabelPrefix = "docker:label:com.docker."
const dockerReservedTag = "sdc_docker"

// isReservedTag reports whether key is structurally reserved (I5):
// docker:label:com.docker.* or sdc_docker.
func isReservedTag(key string) bool {
	return strings.HasPrefix(key, dockerLabelPrefix) || key == dockerReservedTag
}

// validateTags checks a full tag set being set on a VM of the given brand,
// returning FieldErrors for every violation found (error-array composition,
// spec.md §4.2).
//
// isDockerProvision is true only while validating the tag set of a
// provision request whose brand is a docker brand; reserved tags may only
// be introduced there, never through a later update/tags call.
func validateTags(tags map[string]any, isDockerProvision bool) []FieldError {
	var errs []FieldError
	for key, value := range tags {
		if key == "" {
			errs = append(errs, FieldError{Field: "tags", Code: "Invalid", Message: "tag keys must be non-empty"})
			continue
		}
		if isReservedTag(key) && !isDockerProvision {
			errs = append(errs, FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Special tag %q not supported", key)})
			continue
		}
		if !strings.HasPrefix(key, "triton.") {
			continue
		}
		typ, ok := tritonTags[key]
		if !ok {
			errs = append(errs, FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Unrecognized special triton tag %q", key)})
			continue
		}
		if err := validateTritonTagValue(key, typ, value); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// validateTagDeletion checks that deleting key from a VM's tags is
// permitted. Reserved tags may never be deleted via a user operation once
// present on a docker VM.
func validateTagDeletion(key string, isDockerVM bool) *FieldError {
	if isReservedTag(key) && isDockerVM {
		return &FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Special tag %q may not be deleted", key)}
	}
	return nil
}

func validateTritonTagValue(key string, typ tritonTagType, value any) *FieldError {
	switch typ {
	case tritonTypeBool:
		if _, ok := value.(bool); !ok {
			return &FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Triton tag %q value must be a boolean: %v (%s)", key, value, goType(value))}
		}
	case tritonTypeString:
		if _, ok := value.(string); !ok {
			return &FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Triton tag %q value must be a string: %v (%s)", key, value, goType(value))}
		}
	case tritonTypeCNSServices:
		s, ok := value.(string)
		if !ok {
			return &FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf("Triton tag %q value must be a string: %v (%s)", key, value, goType(value))}
		}
		for _, label := range strings.Split(s, ",") {
			label = strings.TrimSpace(label)
			if !isDNSLabel(label) {
				return &FieldError{Field: "tags", Code: "Invalid", Message: fmt.Sprintf(`invalid "triton.cns.services" tag: Expected DNS name but %q found.`, label)}
			}
		}
	}
	return nil
}

func goType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, int, int64:
		return "number"
	default:
		return "unknown"
	}
}

// isDNSLabel reports whether s is a valid single DNS label: 1-63
// characters, alphanumeric plus hyphen, not starting or ending with a
// hyphen.
func isDNSLabel(s string) bool {
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	if s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
