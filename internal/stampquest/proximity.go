package stampquest

// Proximity is the outcome of the unlock-range check.
type Proximity struct {
	DistanceMeters float64 `json:"distanceMeters"`
	WithinRadius   bool    `json:"withinRadius"`
	CanVerify      bool    `json:"canVerify"`
}

// CanVerify reports whether player is within radiusMeters of target, or
// override is set. The distance is returned either way for display.
func CanVerify(player, target Coordinate, radiusMeters float64, override bool) (Proximity, error) {
	d, err := Distance(player, target)
	if err != nil {
		return Proximity{}, err
	}
	within := d <= radiusMeters
	return Proximity{
		DistanceMeters: d,
		WithinRadius:   within,
		CanVerify:      within || override,
	}, nil
}
