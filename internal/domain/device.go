package domain

// Position is a device location in the building model, in metres.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Device is one row of the sensor registry. Name is the unique key.
type Device struct {
	Name     string   `json:"name"`
	Type     string   `json:"type,omitempty"`
	Floor    int      `json:"floor"`
	Position Position `json:"position"`
	Pinned   bool     `json:"pinned"`
}

// DeviceUpdate carries a partial device update; nil fields are left untouched.
type DeviceUpdate struct {
	Type     *string   `json:"type"`
	Floor    *int      `json:"floor"`
	Position *Position `json:"position"`
	Pinned   *bool     `json:"pinned"`
}

// Empty reports whether the update modifies nothing.
func (u DeviceUpdate) Empty() bool {
	return u.Type == nil && u.Floor == nil && u.Position == nil && u.Pinned == nil
}

// DataEntry is one native telemetry record as returned to callers: the
// free-form payload fields (raw scalars or {value, units} objects) plus a
// "timestamp" key in epoch millis.
type DataEntry = map[string]any
