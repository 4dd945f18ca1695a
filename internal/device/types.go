package device

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/twc-director/internal/twc"
)

// Fixed registry metadata for every wall charger.
const (
	Manufacturer = "Home Automation Industries"
	Model        = "Tesla Wall Charger"
)

// Extra state attribute keys exposed with device info.
const (
	AttrAddress      = "address"
	AttrRestartCount = "Restart Count"
)

// Info describes a physical device as entities see it. It is what the
// platforms hand to Registry.GetOrCreate.
type Info struct {
	// Identifier is "<serial>_<ADDR>", stable across restarts.
	Identifier   string
	Name         string
	Manufacturer string
	Model        string
	SWVersion    string

	// ViaDevice is the identifier of a parent device, if any.
	ViaDevice string

	// Attributes are reported alongside entity state; not persisted.
	Attributes map[string]string
}

// InfoFor builds the registry info for a wall charger.
func InfoFor(d twc.Device) Info {
	id := d.Identity()
	return Info{
		Identifier:   id.String(),
		Name:         fmt.Sprintf("%s %04X", id.Serial, id.Address),
		Manufacturer: Manufacturer,
		Model:        Model,
		SWVersion:    d.FirmwareVersion(),
		Attributes: map[string]string{
			AttrAddress:      fmt.Sprintf("%04x", id.Address),
			AttrRestartCount: strconv.Itoa(d.RestartCounter()),
		},
	}
}

// Validate checks the required fields.
func (i Info) Validate() error {
	if i.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidDevice)
	}
	if i.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidDevice)
	}
	return nil
}

// Record is a persisted registry entry.
type Record struct {
	ID           string    `json:"id"`
	Identifier   string    `json:"identifier"`
	Name         string    `json:"name"`
	Manufacturer string    `json:"manufacturer"`
	Model        string    `json:"model"`
	SWVersion    string    `json:"sw_version,omitempty"`
	ViaDevice    string    `json:"via_device,omitempty"`
	ConfigEntry  string    `json:"config_entry,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand out from the cache.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// GenerateID creates a new record ID.
func GenerateID() string {
	return uuid.New().String()
}
