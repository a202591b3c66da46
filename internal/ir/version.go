package ir

// Version constants for descriptors and the generator.
const (
	// DescriptorVersion is the descriptor schema version.
	DescriptorVersion = "1"

	// GeneratorVersion is the covenant generator version.
	GeneratorVersion = "0.1.0"
)
