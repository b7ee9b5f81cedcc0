package validate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateTagsRejectsUnrecognizedTritonTag(t *testing.T) {
	errs := validateTags(map[string]any{"triton.bogus": "x"}, false)
	require.Len(t, errs, 1)
	require.Equal(t, "tags", errs[0].Field)
}

func TestValidateTagsAcceptsKnownBoolTritonTag(t *testing.T) {
	errs := validateTags(map[string]any{"triton.cns.disable": true}, false)
	require.Empty(t, errs)
}

func TestValidateTagsRejectsWrongTypeForTritonTag(t *testing.T) {
	errs := validateTags(map[string]any{"triton.cns.disable": "true"}, false)
	require.Len(t, errs, 1)
}

func TestValidateTagsCNSServicesMustBeDNSLabels(t *testing.T) {
	ok := validateTags(map[string]any{"triton.cns.services": "web, api"}, false)
	require.Empty(t, ok)

	bad := validateTags(map[string]any{"triton.cns.services": "-bad-"}, false)
	require.Len(t, bad, 1)
}

func TestValidateTagsRejectsDockerReservedOutsideProvision(t *testing.T) {
	errs := validateTags(map[string]any{"sdc_docker": "true"}, false)
	require.Len(t, errs, 1)

	errs = validateTags(map[string]any{"docker:label:com.docker.network.bridge": "x"}, false)
	require.Len(t, errs, 1)
}

func TestValidateTagsAllowsDockerReservedDuringDockerProvision(t *testing.T) {
	errs := validateTags(map[string]any{"sdc_docker": "true"}, true)
	require.Empty(t, errs)
}

func TestValidateTagsIgnoresNonTritonNonReservedKeys(t *testing.T) {
	errs := validateTags(map[string]any{"owner": "alice"}, false)
	require.Empty(t, errs)
}

func TestValidateTagDeletionBlocksReservedOnDockerVM(t *testing.T) {
	err := validateTagDeletion("sdc_docker", true)
	require.NotNil(t, err)

	err = validateTagDeletion("sdc_docker", false)
	require.Nil(t, err)

	err = validateTagDeletion("owner", true)
	require.Nil(t, err)
}

func TestIsDNSLabel(t *testing.T) {
	require.True(t, isDNSLabel("web-1"))
	require.False(t, isDNSLabel("-web"))
	require.False(t, isDNSLabel("web-"))
	require.False(t, isDNSLabel(""))
	require.False(t, isDNSLabel("web_1"))
}
