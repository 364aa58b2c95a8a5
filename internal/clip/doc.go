// Package clip holds the part registry: named slots ("parts") that each carry
// an ordered list of candidate media clips.
//
// A Part with zero clips is disabled when optional and invalidates the whole
// batch when required. Parts are reported in registration order, which for
// the Versus layout is the fixed output order:
//
//	Arrives → Training → Entry → Lineup → FaceCam → Skills → Goals → Celebrations
//
// ClipRef values are immutable; the registry only ever copies them.
package clip
