package storyboard

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/storyboard.xr/internal/hand"
)

// Manipulation lock errors. A locked component may be resent unchanged.
var (
	ErrTranslationLocked = errors.New("translation is locked")
	ErrRotationLocked    = errors.New("rotation is locked")
	ErrScaleLocked       = errors.New("scale is locked")
)

// ErrNameTaken is returned when a shot letter is already used in its
// scene. Any number of shots may be Unnamed.
var ErrNameTaken = errors.New("shot name already used in scene")

// DefaultBlockerName is given to blockers created without a name.
const DefaultBlockerName = "Unnamed Blocker"

// ShotRecord is a placed shot frame.
type ShotRecord struct {
	ID                uuid.UUID      `json:"id"`
	Scene             int            `json:"scene"`
	Name              ShotName       `json:"name"`
	Transform         Transform      `json:"transform"`
	EnableTranslation bool           `json:"enableTranslation"`
	EnableRotation    bool           `json:"enableRotation"`
	EnableScale       bool           `json:"enableScale"`
	Notes             string         `json:"notes"`
	PlacedBy          hand.Chirality `json:"placedBy"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// NewShot returns a shot with a fresh ID and every manipulation enabled.
func NewShot(scene int, name ShotName, tr Transform, now time.Time) ShotRecord {
	return ShotRecord{
		ID:                uuid.New(),
		Scene:             scene,
		Name:              name,
		Transform:         tr,
		EnableTranslation: true,
		EnableRotation:    true,
		EnableScale:       true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// ShotPatch is a partial update. Nil fields are left alone. Lock changes
// are applied before the transform, so one patch may unlock and move.
type ShotPatch struct {
	Name              *ShotName   `json:"name,omitempty"`
	Notes             *string     `json:"notes,omitempty"`
	EnableTranslation *bool       `json:"enableTranslation,omitempty"`
	EnableRotation    *bool       `json:"enableRotation,omitempty"`
	EnableScale       *bool       `json:"enableScale,omitempty"`
	Translation       *[3]float64 `json:"translation,omitempty"`
	Rotation          *[4]float64 `json:"rotation,omitempty"`
	Scale             *[3]float64 `json:"scale,omitempty"`
}

// Apply applies p to the shot. On error the shot is unchanged.
func (s *ShotRecord) Apply(p ShotPatch, now time.Time) error {
	next := *s
	if p.Name != nil {
		if !p.Name.Valid() {
			return fmt.Errorf("invalid shot name %q", *p.Name)
		}
		next.Name = *p.Name
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.EnableTranslation != nil {
		next.EnableTranslation = *p.EnableTranslation
	}
	if p.EnableRotation != nil {
		next.EnableRotation = *p.EnableRotation
	}
	if p.EnableScale != nil {
		next.EnableScale = *p.EnableScale
	}
	if p.Translation != nil && *p.Translation != next.Transform.Translation {
		if !next.EnableTranslation {
			return ErrTranslationLocked
		}
		next.Transform.Translation = *p.Translation
	}
	if p.Rotation != nil && !sameRotation(*p.Rotation, next.Transform.Rotation) {
		if !next.EnableRotation {
			return ErrRotationLocked
		}
		next.Transform.Rotation = *p.Rotation
	}
	if p.Scale != nil && *p.Scale != next.Transform.Scale {
		if !next.EnableScale {
			return ErrScaleLocked
		}
		next.Transform.Scale = *p.Scale
	}
	if err := next.Transform.Validate(); err != nil {
		return err
	}
	next.Transform = next.Transform.Normalized()
	next.UpdatedAt = now
	*s = next
	return nil
}

// BlockerRecord is a blocking stand-in (an actor or prop marker). The
// JSON keys match the scene document format.
type BlockerRecord struct {
	ID                 uuid.UUID `json:"id"`
	Scene              int       `json:"scene"`
	Name               string    `json:"name"`
	NeedInitialization bool      `json:"needInitialization"`
	OrientationLock    bool      `json:"orientationLock"`
	Transform          Transform `json:"transform"`
	Notes              string    `json:"notes"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewBlocker returns a blocker waiting for its initial placement.
func NewBlocker(scene int, name string, now time.Time) BlockerRecord {
	if strings.TrimSpace(name) == "" {
		name = DefaultBlockerName
	}
	return BlockerRecord{
		ID:                 uuid.New(),
		Scene:              scene,
		Name:               name,
		NeedInitialization: true,
		Transform:          IdentityTransform(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// Initialize places the blocker in front of the device and clears
// NeedInitialization. It is a no-op once initialised.
func (b *BlockerRecord) Initialize(device hand.Anchor, forward, down float64, now time.Time) {
	if !b.NeedInitialization {
		return
	}
	b.Transform = PlaceInFront(device, forward, down)
	b.NeedInitialization = false
	b.UpdatedAt = now
}

// BlockerPatch is a partial update of a blocker.
type BlockerPatch struct {
	Name            *string     `json:"name,omitempty"`
	Notes           *string     `json:"notes,omitempty"`
	OrientationLock *bool       `json:"orientationLock,omitempty"`
	Translation     *[3]float64 `json:"translation,omitempty"`
	Rotation        *[4]float64 `json:"rotation,omitempty"`
	Scale           *[3]float64 `json:"scale,omitempty"`
}

// Apply applies p to the blocker. On error the blocker is unchanged.
// Moving a blocker counts as its initial placement.
func (b *BlockerRecord) Apply(p BlockerPatch, now time.Time) error {
	next := *b
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return errors.New("blocker name must not be empty")
		}
		next.Name = *p.Name
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.OrientationLock != nil {
		next.OrientationLock = *p.OrientationLock
	}
	if p.Translation != nil {
		next.Transform.Translation = *p.Translation
		next.NeedInitialization = false
	}
	if p.Rotation != nil && !sameRotation(*p.Rotation, next.Transform.Rotation) {
		if next.OrientationLock {
			return ErrRotationLocked
		}
		next.Transform.Rotation = *p.Rotation
	}
	if p.Scale != nil {
		next.Transform.Scale = *p.Scale
	}
	if err := next.Transform.Validate(); err != nil {
		return err
	}
	next.Transform = next.Transform.Normalized()
	next.UpdatedAt = now
	*b = next
	return nil
}
