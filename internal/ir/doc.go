// Package ir provides the declaration table and wrapper descriptor types for covenant.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. Declarations are read-only inputs
// produced by the discovery layer (CUE loading in internal/compiler, or
// manual registration); descriptors are the output handed to emission.
//
// Key design constraints:
//   - Declaration order is significant everywhere (check order, error order)
//   - Descriptors contain no maps so they serialize identically on every run
//   - All JSON tags use snake_case
package ir
