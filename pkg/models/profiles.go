package models

// ApplianceProfile is the typical power draw of a household appliance cycle.
type ApplianceProfile struct {
	Watts          float64
	RuntimeMinutes int
}

var ApplianceProfiles = map[string]ApplianceProfile{
	"washing_machine": {Watts: 500, RuntimeMinutes: 120},
	"dishwasher":      {Watts: 1200, RuntimeMinutes: 150},
	"dryer":           {Watts: 2500, RuntimeMinutes: 90},
	"heat_pump":       {Watts: 2000, RuntimeMinutes: 60},
	"ev_charger":      {Watts: 11000, RuntimeMinutes: 240},
}
