package model

// DefaultLoadVoltage is the battery-side voltage a Converter starts with.
const DefaultLoadVoltage = 0.6

// Converter is an ideal, instantaneous DC-DC converter. It turns the array
// voltage requested by a tracker into a duty cycle against the load voltage,
// and reports the requested voltage back as the array voltage it produces.
type Converter struct {
	arrayVoltage float64
	loadVoltage  float64
	pulseWidth   float64
}

func NewConverter(arrayVoltage, loadVoltage float64) *Converter {
	return &Converter{arrayVoltage: arrayVoltage, loadVoltage: loadVoltage}
}

// SetPulseWidth targets array voltage v. A non-positive target still moves the
// array to v, but keeps the last duty cycle since 1 - Vload/v has no meaning there.
func (c *Converter) SetPulseWidth(v float64) {
	c.arrayVoltage = v
	if v > 0 {
		c.pulseWidth = 1 - c.loadVoltage/v
	}
}

func (c *Converter) PulseWidth() float64 { return c.pulseWidth }

// VoltageOut is the array voltage the converter currently holds.
func (c *Converter) VoltageOut() float64 { return c.arrayVoltage }

func (c *Converter) SetLoadVoltage(v float64) { c.loadVoltage = v }
func (c *Converter) LoadVoltage() float64     { return c.loadVoltage }
