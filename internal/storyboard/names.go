package storyboard

import (
	"fmt"
	"strings"
)

// ShotName labels a shot. Shots placed by gesture take the first free
// letter of the scene.
type ShotName string

// Unnamed is used once every letter is taken.
const Unnamed ShotName = "unnamed"

// ShotNames lists the letter names in allocation order.
var ShotNames = func() []ShotName {
	names := make([]ShotName, 0, 26)
	for c := 'a'; c <= 'z'; c++ {
		names = append(names, ShotName(string(c)))
	}
	return names
}()

// Display returns the upper-case label shown on the frame.
func (n ShotName) Display() string {
	return strings.ToUpper(string(n))
}

// Valid reports whether n is Unnamed or a single letter a-z.
func (n ShotName) Valid() bool {
	if n == Unnamed {
		return true
	}
	return len(n) == 1 && n[0] >= 'a' && n[0] <= 'z'
}

// ParseShotName accepts a letter in either case or "unnamed".
func ParseShotName(s string) (ShotName, error) {
	n := ShotName(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("invalid shot name %q", s)
	}
	return n, nil
}

// NextShotName returns the first letter not in used, or Unnamed when all
// letters are taken.
func NextShotName(used []ShotName) ShotName {
	taken := make(map[ShotName]bool, len(used))
	for _, n := range used {
		taken[n] = true
	}
	for _, n := range ShotNames {
		if !taken[n] {
			return n
		}
	}
	return Unnamed
}
