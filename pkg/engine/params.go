package engine

// Params holds the retrieval tunables. DefaultParams returns the values
// the ranking pipeline is calibrated for.
type Params struct {
	// Activation
	KeywordEnergy           float64 `json:"keyword_energy" yaml:"keyword_energy" mapstructure:"keyword_energy"`
	SpatioTemporalResonance float64 `json:"spatio_temporal_resonance" yaml:"spatio_temporal_resonance" mapstructure:"spatio_temporal_resonance"`
	AffectiveResonance      float64 `json:"affective_resonance" yaml:"affective_resonance" mapstructure:"affective_resonance"`

	// Ontology diffusion (MAX-combine)
	OntologyDamping float64 `json:"ontology_damping" yaml:"ontology_damping" mapstructure:"ontology_damping"`
	OntologyFloor   float64 `json:"ontology_floor" yaml:"ontology_floor" mapstructure:"ontology_floor"`
	EnergyBudget    float64 `json:"energy_budget" yaml:"energy_budget" mapstructure:"energy_budget"`

	// Memory diffusion (SUM-combine)
	MemoryDamping float64 `json:"memory_damping" yaml:"memory_damping" mapstructure:"memory_damping"`
	MemoryFloor   float64 `json:"memory_floor" yaml:"memory_floor" mapstructure:"memory_floor"`
	SeedCap       int     `json:"seed_cap" yaml:"seed_cap" mapstructure:"seed_cap"`

	// Refinement
	RefineCap     int     `json:"refine_cap" yaml:"refine_cap" mapstructure:"refine_cap"`
	SemanticBoost float64 `json:"semantic_boost" yaml:"semantic_boost" mapstructure:"semantic_boost"`
	TemporalBoost float64 `json:"temporal_boost" yaml:"temporal_boost" mapstructure:"temporal_boost"`
	EmotionBoost  float64 `json:"emotion_boost" yaml:"emotion_boost" mapstructure:"emotion_boost"`
	TypeBoost     float64 `json:"type_boost" yaml:"type_boost" mapstructure:"type_boost"`

	// Time decay: max(DecayFloor, exp(-age/DecayTau)), age in seconds.
	DecayTau   float64 `json:"decay_tau" yaml:"decay_tau" mapstructure:"decay_tau"`
	DecayFloor float64 `json:"decay_floor" yaml:"decay_floor" mapstructure:"decay_floor"`

	// Enhanced retrieval
	DimensionThreshold float64 `json:"dimension_threshold" yaml:"dimension_threshold" mapstructure:"dimension_threshold"`
	StrongDimension    float64 `json:"strong_dimension" yaml:"strong_dimension" mapstructure:"strong_dimension"`
	StrongBoostFactor  float64 `json:"strong_boost_factor" yaml:"strong_boost_factor" mapstructure:"strong_boost_factor"`
}

// DefaultParams returns the default tunables.
func DefaultParams() Params {
	return Params{
		KeywordEnergy:           1.0,
		SpatioTemporalResonance: 0.6,
		AffectiveResonance:      0.7,
		OntologyDamping:         0.95,
		OntologyFloor:           0.05,
		EnergyBudget:            10,
		MemoryDamping:           0.85,
		MemoryFloor:             0.01,
		SeedCap:                 5000,
		RefineCap:               50,
		SemanticBoost:           0.6,
		TemporalBoost:           0.5,
		EmotionBoost:            0.6,
		TypeBoost:               0.8,
		DecayTau:                31536000,
		DecayFloor:              0.8,
		DimensionThreshold:      0.3,
		StrongDimension:         0.5,
		StrongBoostFactor:       1.5,
	}
}

// Dimension boost magnitudes for enhanced retrieval, as (already active,
// inactive) pairs.
const (
	temporalDimActive    = 0.4
	temporalDimInactive  = 0.2
	emotionalDimActive   = 0.5
	emotionalDimInactive = 0.25
	characterDimActive   = 0.4
	characterDimInactive = 0.2
)
