// Package storyboard models what gets placed in a scene: shot frames and
// blocking stand-ins, their transforms and manipulation locks, and the
// placer that turns place events into named shots.
package storyboard
