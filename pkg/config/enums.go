package config

// ReasoningMode names a query's reasoning strategy in configuration; it
// mirrors executor.Mode as a string so config files never need to import
// the orchestrator packages.
type ReasoningMode string

const (
	ReasoningModeDirect          ReasoningMode = "direct"
	ReasoningModeChainOfThought  ReasoningMode = "chain_of_thought"
	ReasoningModeDialectical     ReasoningMode = "dialectical"
	ReasoningModeAuto            ReasoningMode = "auto"
)

// IsValid reports whether m is one of the four recognized reasoning modes.
func (m ReasoningMode) IsValid() bool {
	switch m {
	case ReasoningModeDirect, ReasoningModeChainOfThought, ReasoningModeDialectical, ReasoningModeAuto:
		return true
	default:
		return false
	}
}

// BrokerTransport selects the Broker implementation wired at startup.
type BrokerTransport string

const (
	// BrokerTransportLocal uses the in-memory ports.LocalBroker — a single
	// process, no distributed dispatch.
	BrokerTransportLocal BrokerTransport = "local"
	// BrokerTransportGRPC uses the grpc-backed distributed.Broker.
	BrokerTransportGRPC BrokerTransport = "grpc"
)

// IsValid reports whether t is a recognized broker transport.
func (t BrokerTransport) IsValid() bool {
	return t == BrokerTransportLocal || t == BrokerTransportGRPC
}

// LLMProviderType names supported LLM provider backends.
type LLMProviderType string

const (
	LLMProviderOpenAI    LLMProviderType = "openai"
	LLMProviderAnthropic LLMProviderType = "anthropic"
	LLMProviderGoogle    LLMProviderType = "google"
)

// IsValid reports whether t is a recognized LLM provider type.
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderOpenAI, LLMProviderAnthropic, LLMProviderGoogle:
		return true
	default:
		return false
	}
}
