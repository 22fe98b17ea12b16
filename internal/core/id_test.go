package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAgentID_Valid(t *testing.T) {
	id, err := ParseAgentID("acme.example.org:prod:search-agent")
	require.NoError(t, err)
	assert.Equal(t, "acme.example.org", id.Namespace())
	assert.Equal(t, "prod", id.Cluster())
	assert.Equal(t, "search-agent", id.Entity())
}

func TestParseAgentID_Invalid(t *testing.T) {
	cases := []string{
		"",
		"one-part",
		"two:parts",
		"four:parts:are:bad",
		"empty::entity",
		":cluster:entity",
		"ns:cluster:",
	}
	for _, raw := range cases {
		_, err := ParseAgentID(raw)
		assert.Error(t, err, "should reject %q", raw)
	}
}

func TestAgentID_SPIFFERoundTrip(t *testing.T) {
	id, err := ParseAgentID("trustcore.local:prod:billing-bot")
	require.NoError(t, err)

	sid, err := id.SPIFFEID()
	require.NoError(t, err)
	assert.Equal(t, "spiffe://trustcore.local/prod/billing-bot", sid.String())

	back, err := AgentIDFromSPIFFE(sid)
	require.NoError(t, err)
	assert.Equal(t, id, back)
}
