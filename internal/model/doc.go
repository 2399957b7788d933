// Package model provides the validated semantic model for statechart
// topologies.
//
// This package contains type definitions and structural validation only.
// All other internal packages import model; model imports nothing internal.
// This keeps the semantic model the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - NO float types anywhere - payload and context values are string,
//     int64, or bool (floats break bit-for-bit agreement between the
//     reference interpreter and generated target code)
//   - States, regions, and transitions live in flat arenas addressed by
//     small integer handles (StateID, RegionID, TransitionID), never by
//     owning pointers - history and join bookkeeping record indices, so
//     the containment tree stays acyclic
//   - A Machine is built once, validated once, and never mutated afterwards
//   - Extern guards and actions are capability slots resolved by index at
//     build time, never looked up by name at dispatch time
package model
