package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasoningMode_IsValid(t *testing.T) {
	assert.True(t, ReasoningModeDirect.IsValid())
	assert.True(t, ReasoningModeChainOfThought.IsValid())
	assert.True(t, ReasoningModeDialectical.IsValid())
	assert.True(t, ReasoningModeAuto.IsValid())
	assert.False(t, ReasoningMode("bogus").IsValid())
}

func TestBrokerTransport_IsValid(t *testing.T) {
	assert.True(t, BrokerTransportLocal.IsValid())
	assert.True(t, BrokerTransportGRPC.IsValid())
	assert.False(t, BrokerTransport("carrier_pigeon").IsValid())
}

func TestLLMProviderType_IsValid(t *testing.T) {
	assert.True(t, LLMProviderOpenAI.IsValid())
	assert.True(t, LLMProviderAnthropic.IsValid())
	assert.True(t, LLMProviderGoogle.IsValid())
	assert.False(t, LLMProviderType("bogus").IsValid())
}
